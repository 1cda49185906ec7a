package dynform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carecenter/dashboard/internal/platform/formschema"
)

const noneOption = "(none)"

// Prompter fills a Form field by field through a PromptDriver.
type Prompter struct {
	driver PromptDriver
	// MaxAttempts bounds how often Run re-prompts after rejected input.
	MaxAttempts int
}

// NewPrompter returns a prompter over driver.
func NewPrompter(driver PromptDriver) *Prompter {
	return &Prompter{driver: driver, MaxAttempts: 3}
}

// Fill prompts for every visible field. Immutable fields are skipped when
// the form edits an existing row.
func (p *Prompter) Fill(ctx context.Context, form *Form) error {
	for _, f := range form.Schema().Fields {
		if f.Hidden || (f.Immutable && form.Mode() == ModeUpdate) {
			continue
		}
		if err := p.Ask(ctx, form, f); err != nil {
			return err
		}
	}
	return nil
}

// Run fills the form and submits it with fn. Fields rejected by local
// validation or by fn are prompted again, up to MaxAttempts rounds.
func (p *Prompter) Run(ctx context.Context, form *Form, fn SubmitFunc) error {
	if err := p.Fill(ctx, form); err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		err := form.Submit(ctx, fn)
		ve, ok := formschema.AsValidationError(err)
		if !ok || attempt >= p.MaxAttempts {
			return err
		}
		if err := p.showErrors(ctx, ve); err != nil {
			return err
		}
		if err := p.refill(ctx, form, ve); err != nil {
			return err
		}
	}
}

func (p *Prompter) showErrors(ctx context.Context, ve *formschema.ValidationError) error {
	for _, msg := range ve.Form {
		if err := p.driver.Info(ctx, "✗ "+msg); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(ve.Fields))
	for name := range ve.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		msg := fmt.Sprintf("✗ %s %s", name, strings.Join(ve.Fields[name], ", "))
		if err := p.driver.Info(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Prompter) refill(ctx context.Context, form *Form, ve *formschema.ValidationError) error {
	for _, f := range form.Schema().Fields {
		if _, bad := ve.Fields[f.Name]; !bad || f.Hidden {
			continue
		}
		if err := p.Ask(ctx, form, f); err != nil {
			return err
		}
	}
	return nil
}

func message(f formschema.Field) string {
	label := f.DisplayLabel()
	if f.Required {
		label += " *"
	}
	return label
}

// Ask prompts for a single field and stores the answer on the form.
func (p *Prompter) Ask(ctx context.Context, form *Form, f formschema.Field) error {
	current := form.Value(f.Name)
	check := func(s string) error {
		if err := form.Check(f.Name, s); err != nil {
			if ve, ok := formschema.AsValidationError(err); ok {
				return errors.New(strings.Join(ve.Fields[f.Name], ", "))
			}
			return err
		}
		return nil
	}

	switch f.Type {
	case formschema.FieldPassword:
		cfg := InputConfig{Message: message(f), Help: f.Help, Validator: check}
		if form.Mode() == ModeUpdate {
			cfg.Help = "leave empty to keep the current value"
			cfg.Validator = func(s string) error {
				if s == "" {
					return nil
				}
				return check(s)
			}
		}
		s, err := p.driver.Password(ctx, cfg)
		if err != nil {
			return err
		}
		if s == "" && form.Mode() == ModeUpdate {
			return nil
		}
		return form.SetRaw(f.Name, s)

	case formschema.FieldTextarea:
		s, err := p.driver.TextArea(ctx, TextAreaConfig{
			Message: message(f), Help: f.Help, Default: formschema.FormatValue(f, current),
		})
		if err != nil {
			return err
		}
		return form.SetRaw(f.Name, s)

	case formschema.FieldCheckbox:
		def, _ := current.(bool)
		b, err := p.driver.Confirm(ctx, ConfirmConfig{Message: message(f), Help: f.Help, Default: def})
		if err != nil {
			return err
		}
		return form.Set(f.Name, b)

	case formschema.FieldSelect:
		return p.askSelect(ctx, form, f, current)

	case formschema.FieldMultiSelect:
		labels := optionLabels(f)
		selected, _ := current.([]string)
		var defaults []int
		for i, o := range f.Options {
			for _, s := range selected {
				if s == o.Value {
					defaults = append(defaults, i)
				}
			}
		}
		idx, err := p.driver.MultiSelect(ctx, SelectConfig{Message: message(f), Options: labels, Defaults: defaults, Help: f.Help})
		if err != nil {
			return err
		}
		vals := make([]string, 0, len(idx))
		for _, i := range idx {
			if i >= 0 && i < len(f.Options) {
				vals = append(vals, f.Options[i].Value)
			}
		}
		return form.Set(f.Name, vals)

	case formschema.FieldFile:
		s, err := p.driver.Input(ctx, InputConfig{
			Message: message(f) + " (path)",
			Help:    f.Help,
			Validator: func(s string) error {
				if s == "" {
					if f.Required && form.Mode() == ModeCreate {
						return errors.New("is required")
					}
					return nil
				}
				_, err := os.Stat(s)
				return err
			},
		})
		if err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		file, err := LocalFile(s)
		if err != nil {
			return err
		}
		return form.Set(f.Name, file)
	}

	help := f.Help
	if help == "" {
		help = formatHint(f.Type)
	}
	s, err := p.driver.Input(ctx, InputConfig{
		Message:   message(f),
		Default:   formschema.FormatValue(f, current),
		Help:      help,
		Validator: check,
	})
	if err != nil {
		return err
	}
	return form.SetRaw(f.Name, s)
}

func (p *Prompter) askSelect(ctx context.Context, form *Form, f formschema.Field, current any) error {
	labels := optionLabels(f)
	offset := 0
	if !f.Required {
		labels = append([]string{noneOption}, labels...)
		offset = 1
	}
	def := 0
	if cur, ok := current.(string); ok {
		for i, o := range f.Options {
			if o.Value == cur {
				def = i + offset
			}
		}
	}
	idx, err := p.driver.Select(ctx, SelectConfig{Message: message(f), Options: labels, DefaultIndex: def, Help: f.Help})
	if err != nil {
		return err
	}
	i := idx - offset
	if i < 0 || i >= len(f.Options) {
		return form.Set(f.Name, "")
	}
	return form.Set(f.Name, f.Options[i].Value)
}

func optionLabels(f formschema.Field) []string {
	out := make([]string, len(f.Options))
	for i, o := range f.Options {
		out[i] = o.Label
		if out[i] == "" {
			out[i] = o.Value
		}
	}
	return out
}

func formatHint(t formschema.FieldType) string {
	switch t {
	case formschema.FieldDate:
		return "YYYY-MM-DD"
	case formschema.FieldDateTime:
		return "YYYY-MM-DDTHH:MM"
	case formschema.FieldTime:
		return "HH:MM"
	}
	return ""
}

// LocalFile describes a file on disk as a form upload. The content type is
// taken from the extension.
func LocalFile(path string) (*formschema.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	} else {
		ct = "application/octet-stream"
	}
	return &formschema.File{
		Filename:    filepath.Base(path),
		ContentType: ct,
		Size:        info.Size(),
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}
