package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sosalert/internal/models"
	"sosalert/pkg/logger"
	"sosalert/pkg/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const archiveTimeout = 30 * time.Second

// IncidentReport is the record kept after an emergency closes.
type IncidentReport struct {
	Emergency       *models.Emergency            `json:"emergency"`
	Acknowledgments []*models.Acknowledgment     `json:"acknowledgments"`
	Escalation      *models.EscalationTimer      `json:"escalation,omitempty"`
	Batches         []*models.BatchSummary       `json:"batches"`
	Notifications   []*models.NotificationRecord `json:"notifications"`
	ArchivedAt      time.Time                    `json:"archived_at"`
}

// IncidentArchiver writes an IncidentReport to object storage when an
// emergency is resolved or cancelled. Uploads run in the background and
// Stop waits for them.
type IncidentArchiver struct {
	orchestrator Orchestrator
	store        storage.StorageProvider
	prefix       string
	wg           sync.WaitGroup
	logger       *logger.Logger
	now          func() time.Time
}

func NewIncidentArchiver(orchestrator Orchestrator, store storage.StorageProvider, prefix string, log *logger.Logger) *IncidentArchiver {
	if prefix == "" {
		prefix = "incidents"
	}
	return &IncidentArchiver{
		orchestrator: orchestrator,
		store:        store,
		prefix:       prefix,
		logger:       log.WithField("component", "incident_archiver"),
		now:          time.Now,
	}
}

// HandleClosed is subscribed to the resolved and cancelled events.
func (a *IncidentArchiver) HandleClosed(_ context.Context, event *models.DomainEvent) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()

		if _, err := a.Archive(ctx, event.EmergencyID); err != nil {
			a.logger.WithEmergencyID(event.EmergencyID).WithError(err).Error("Failed to archive incident")
		}
	}()
}

func (a *IncidentArchiver) Stop() {
	a.wg.Wait()
}

// Archive snapshots the emergency and everything that happened to it.
func (a *IncidentArchiver) Archive(ctx context.Context, id primitive.ObjectID) (*storage.UploadResponse, error) {
	report, err := a.build(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode incident report: %w", err)
	}

	e := report.Emergency
	resp, err := a.store.Upload(ctx, &storage.UploadRequest{
		Key:         a.key(e),
		Reader:      bytes.NewReader(body),
		ContentType: "application/json",
		Size:        int64(len(body)),
		Metadata: map[string]string{
			"emergency-id": e.ID.Hex(),
			"user-id":      e.UserID.Hex(),
			"status":       string(e.Status),
		},
	})
	if err != nil {
		return nil, err
	}

	a.logger.WithEmergencyID(e.ID).WithField("location", resp.Location).Info("Incident archived")
	return resp, nil
}

func (a *IncidentArchiver) build(ctx context.Context, id primitive.ObjectID) (*IncidentReport, error) {
	view, err := a.orchestrator.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &IncidentReport{
		Emergency:       view.Emergency,
		Acknowledgments: view.Acknowledgments,
		ArchivedAt:      a.now(),
	}

	if report.Batches, err = a.orchestrator.Batches(ctx, id); err != nil {
		return nil, err
	}
	if report.Notifications, err = a.orchestrator.Notifications(ctx, id); err != nil {
		return nil, err
	}

	// Emergencies cancelled during the countdown never had an escalation.
	if timer, err := a.orchestrator.Escalation(ctx, id); err == nil {
		report.Escalation = timer
	}

	return report, nil
}

// key partitions reports by the month the emergency was created.
func (a *IncidentArchiver) key(e *models.Emergency) string {
	return fmt.Sprintf("%s/%s/%s.json", a.prefix, e.CreatedAt.UTC().Format("2006/01"), e.ID.Hex())
}
