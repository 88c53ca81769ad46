package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/notify"
)

const heartbeatInterval = 15 * time.Second

// StreamNotifications serves toasts as server-sent events. Recent toasts are
// replayed first. With ?follow=false the stream ends after the replay.
func (h *Handler) StreamNotifications(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	recent := h.hub.Recent()
	if !c.QueryBool("follow", true) {
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			for _, t := range recent {
				if writeToast(w, t) != nil {
					return
				}
			}
		})
		return nil
	}

	ch, cancel := h.hub.Subscribe(32)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for _, t := range recent {
			if writeToast(w, t) != nil {
				return
			}
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		for {
			select {
			case t, ok := <-ch:
				if !ok {
					return
				}
				if err := writeToast(w, t); err != nil {
					log.Debugf("api: notification stream closed: %v", err)
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeToast(w *bufio.Writer, t notify.Toast) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: toast\ndata: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
