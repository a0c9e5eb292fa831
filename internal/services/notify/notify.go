// Package notify sends high-urgency ticket notifications to the external
// notification endpoint. Sends are fire-and-forget: failures are retried with
// backoff and ultimately logged, never surfaced to the ingestion path.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/ticketvault/internal/config"
	"github.com/terminal-bench/ticketvault/pkg/circuit"
)

const maxAttempts = 3

// Payload is the notification request body.
type Payload struct {
	TicketID string `json:"ticket_id"`
	TenantID string `json:"tenant_id"`
	Urgency  string `json:"urgency"`
	Reason   string `json:"reason"`
}

// Service posts notifications through the "notify" circuit breaker.
type Service struct {
	notifyURL string
	breaker   *circuit.Breaker
	client    *http.Client
	baseDelay time.Duration

	// wg tracks in-flight sends so tests and shutdown can drain them.
	wg sync.WaitGroup
}

// NewService creates a notifier targeting {externalAPIURL}/notify.
func NewService(externalAPIURL string, breakers *circuit.Registry) *Service {
	return &Service{
		notifyURL: externalAPIURL + "/notify",
		breaker:   breakers.Get("notify"),
		client:    &http.Client{Timeout: config.NotifyTimeout},
		baseDelay: time.Second,
	}
}

// Send schedules an asynchronous notification and returns immediately.
func (s *Service) Send(ticketID, tenantID, urgency, reason string) {
	payload := Payload{
		TicketID: ticketID,
		TenantID: tenantID,
		Urgency:  urgency,
		Reason:   reason,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendWithRetry(payload)
	}()
}

// Drain blocks until all scheduled notifications have finished.
func (s *Service) Drain() {
	s.wg.Wait()
}

// sendWithRetry performs up to maxAttempts sends with exponential backoff and
// jitter. An open circuit terminates retries immediately.
func (s *Service) sendWithRetry(payload Payload) bool {
	log := logrus.WithFields(logrus.Fields{
		"ticket_id": payload.TicketID,
		"tenant_id": payload.TenantID,
	})

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.breaker.Execute(func() error {
			return s.post(payload)
		})

		if err == nil {
			log.Info("notification sent")
			return true
		}

		if openErr, ok := err.(*circuit.OpenError); ok {
			log.WithField("retry_after", openErr.RetryAfter.Seconds()).
				Warn("notification circuit open, giving up")
			return false
		}

		log.WithError(err).Errorf("notification attempt %d/%d failed", attempt+1, maxAttempts)

		if attempt < maxAttempts-1 {
			delay := s.baseDelay * (1 << attempt)
			jitter := time.Duration(rand.Int63n(int64(3*delay/10) + 1))
			time.Sleep(delay + jitter)
		}
	}

	log.Errorf("all %d notification attempts failed", maxAttempts)
	return false
}

func (s *Service) post(payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := s.client.Post(s.notifyURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
