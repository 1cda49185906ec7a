package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/auth"
)

// Changes returns middleware publishing an event for every successful
// write under prefix to a resource known reports as served.
func Changes(pub EventPublisher, prefix string, known func(resource string) bool, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions ||
				!strings.HasPrefix(path, prefix+"/") {
				return next(c)
			}

			err := next(c)
			if err != nil || c.Response().Status >= http.StatusMultipleChoices {
				return err
			}
			ev, ok := eventFor(req.Method, strings.TrimPrefix(path, prefix+"/"))
			if !ok || (known != nil && !known(ev.Resource)) {
				return nil
			}
			ctx := req.Context()
			ev.User = auth.UsernameFromContext(ctx)
			ev.At = time.Now().UTC()
			if perr := pub.Publish(ctx, ev); perr != nil {
				log.Warn().Err(perr).Str("type", ev.Type).Str("resource", ev.Resource).Msg("publish change")
			}
			return nil
		}
	}
}

// eventFor maps a write request onto an event: "patients" is a create,
// "patients/<id>" an update or delete and "dialysis-sessions/<id>/start"
// the start action.
func eventFor(method, rel string) (Event, bool) {
	segs := strings.Split(strings.Trim(rel, "/"), "/")
	if segs[0] == "" {
		return Event{}, false
	}
	ev := Event{Resource: segs[0]}
	if len(segs) > 1 {
		if _, err := uuid.Parse(segs[1]); err != nil {
			return Event{}, false
		}
		ev.ID = segs[1]
	}
	switch {
	case method == http.MethodDelete && len(segs) == 2:
		ev.Type = "deleted"
	case (method == http.MethodPut || method == http.MethodPatch) && len(segs) == 2:
		ev.Type = "updated"
	case method == http.MethodPost && len(segs) == 1:
		ev.Type = "created"
	case method == http.MethodPost && len(segs) == 3:
		ev.Type = segs[2]
	default:
		return Event{}, false
	}
	return ev, true
}
