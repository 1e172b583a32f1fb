// Package webhook adapts the print-queue teacher's retrying,
// HMAC-signed webhook delivery worker pool into an eventsink.Sink: an
// optional outbound notifier for job and printer lifecycle events.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Event names mirror the external event list exactly.
const (
	EventPrinterDefined = "printer_defined"
	EventPrinterStatus  = "printer_status"
	EventJobCreated     = "job_created"
	EventJobStatus      = "job_status"
	EventJobStarted     = "job_started"
	EventJobFinished    = "job_finished"
	EventJobAborted     = "job_aborted"
	EventJobDeleted     = "job_deleted"
	EventCmdOK          = "cmd_ok"
	EventCmdError       = "cmd_error"
)

// Payload is the envelope posted to the configured URL for every event.
type Payload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

// Config tunes the sender's retry and concurrency behavior.
type Config struct {
	URL         string
	Secret      string
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type task struct {
	payload *Payload
	attempt int
}

// Sender is an eventsink.Sink that posts signed JSON payloads to a
// single configured URL through a bounded worker pool with exponential
// backoff: a worker pool draining a buffered channel, retrying
// client-error-free failures with backoff, HMAC-SHA256 signing, but
// targeting one static destination instead of a database-backed
// webhook registry, and implementing eventsink.Sink directly rather
// than a bespoke two-method interface.
type Sender struct {
	url         string
	secret      string
	httpClient  *http.Client
	maxRetries  int
	retryDelay  time.Duration
	queue       chan *task
	stopCh      chan struct{}
	wg          sync.WaitGroup
	workerCount int
}

// New builds a Sender from cfg, defaulting any zero-valued tunable.
func New(cfg Config) *Sender {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Sender{
		url:    cfg.URL,
		secret: cfg.Secret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		queue:       make(chan *task, cfg.QueueSize),
		stopCh:      make(chan struct{}),
		workerCount: cfg.WorkerCount,
	}
}

// Start launches the worker pool, one goroutine per configured worker.
func (s *Sender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop signals the worker pool to exit and waits for every worker to
// return. Events still queued are not sent, and a send waiting out a
// retry backoff gives up.
func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sender) enqueue(event string, data interface{}) {
	if s.url == "" {
		return
	}
	t := &task{payload: &Payload{Event: event, Timestamp: time.Now(), Data: data}}
	select {
	case s.queue <- t:
	default:
		log.Printf("[webhook] queue full, dropping event %s", event)
	}
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				log.Printf("[webhook worker %d] failed to send event %s after %d attempts: %v",
					id, t.payload.Event, t.attempt, err)
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.maxRetries {
		t.attempt++

		err := s.sendRequest(t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			log.Printf("[webhook] client error, not retrying: %v", err)
			return err
		}

		if t.attempt < s.maxRetries {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			log.Printf("[webhook] retry %d/%d for event %s in %v: %v",
				t.attempt, s.maxRetries, t.payload.Event, backoff, err)
			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if s.secret != "" {
		payload.Signature = s.signPayload(dataBytes)
	}

	fullPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest("POST", s.url, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}
	return nil
}

func (s *Sender) signPayload(payload []byte) string {
	h := hmac.New(sha256.New, []byte(s.secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "http error: 4")
}

// eventsink.Sink implementation.

type printerDefinedData struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Sender) PrinterDefined(name, typeName string) {
	s.enqueue(EventPrinterDefined, printerDefinedData{Name: name, Type: typeName})
}

type printerStatusData struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Sender) PrinterStatus(name, status string) {
	s.enqueue(EventPrinterStatus, printerStatusData{Name: name, Status: status})
}

type jobCreatedData struct {
	ID   int    `json:"id"`
	UUID string `json:"uuid"`
	Path string `json:"path"`
	Type string `json:"type"`
}

func (s *Sender) JobCreated(id int, jobUUID, path, typeName string) {
	s.enqueue(EventJobCreated, jobCreatedData{ID: id, UUID: jobUUID, Path: path, Type: typeName})
}

type jobStatusData struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

func (s *Sender) JobStatus(id int, status string) {
	s.enqueue(EventJobStatus, jobStatusData{ID: id, Status: status})
}

type jobStartedData struct {
	ID      int      `json:"id"`
	UUID    string   `json:"uuid"`
	Printer string   `json:"printer"`
	Pgid    int      `json:"pgid"`
	Stages  []string `json:"stages"`
}

func (s *Sender) JobStarted(id int, jobUUID, printerName string, pgid int, stagePrograms []string) {
	s.enqueue(EventJobStarted, jobStartedData{ID: id, UUID: jobUUID, Printer: printerName, Pgid: pgid, Stages: stagePrograms})
}

type jobFinishedData struct {
	ID   int    `json:"id"`
	UUID string `json:"uuid"`
	Code int    `json:"code"`
}

func (s *Sender) JobFinished(id int, jobUUID string, code int) {
	s.enqueue(EventJobFinished, jobFinishedData{ID: id, UUID: jobUUID, Code: code})
}

type jobAbortedData struct {
	ID     int    `json:"id"`
	UUID   string `json:"uuid"`
	Signal int    `json:"signal"`
}

func (s *Sender) JobAborted(id int, jobUUID string, signal int) {
	s.enqueue(EventJobAborted, jobAbortedData{ID: id, UUID: jobUUID, Signal: signal})
}

type jobDeletedData struct {
	ID int `json:"id"`
}

func (s *Sender) JobDeleted(id int) {
	s.enqueue(EventJobDeleted, jobDeletedData{ID: id})
}

type cmdOKData struct {
	Cmd string `json:"cmd"`
}

func (s *Sender) CmdOK(cmd string) {
	s.enqueue(EventCmdOK, cmdOKData{Cmd: cmd})
}

type cmdErrorData struct {
	Cmd string `json:"cmd"`
	Err string `json:"error"`
}

func (s *Sender) CmdError(cmd string, err error) {
	s.enqueue(EventCmdError, cmdErrorData{Cmd: cmd, Err: err.Error()})
}
