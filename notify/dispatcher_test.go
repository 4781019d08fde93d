package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"raceday-backend/models"
)

type fakeChannel struct {
	name       string
	configured bool
	err        error
	calls      int
}

func (f *fakeChannel) Name() string     { return f.name }
func (f *fakeChannel) Configured() bool { return f.configured }
func (f *fakeChannel) Send(context.Context, Message) error {
	f.calls++
	return f.err
}

type fakeLogStore struct {
	entries   []models.NotificationLog
	appendErr error
}

func (f *fakeLogStore) AppendNotificationLog(_ context.Context, entry models.NotificationLog) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogStore) HasNotification(_ context.Context, registrationID uuid.UUID, kind string) (bool, error) {
	for _, e := range f.entries {
		if e.RegistrationID == registrationID && e.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func msg() Message {
	return Message{To: "runner@example.com", Subject: "Payment confirmed", Body: "Your BIB is 10K001"}
}

func TestNotifyPrimarySucceeds(t *testing.T) {
	primary := &fakeChannel{name: "primary-mail", configured: true}
	fallback := &fakeChannel{name: "fallback-mail", configured: true}
	logs := &fakeLogStore{}
	d := NewDispatcher(logs, primary, fallback)

	regID := uuid.New()
	out := d.Notify(context.Background(), regID, models.KindPaymentConfirmed, msg())

	if out.Status != models.NotificationSent || out.Channel != "primary-mail" {
		t.Errorf("outcome = %+v, want SENT via primary-mail", out)
	}
	if fallback.calls != 0 {
		t.Error("fallback attempted although primary succeeded")
	}
	if len(logs.entries) != 1 {
		t.Fatalf("wrote %d log rows, want exactly 1", len(logs.entries))
	}
	entry := logs.entries[0]
	if entry.Status != models.NotificationSent || entry.Channel != "primary-mail" || entry.RegistrationID != regID {
		t.Errorf("log entry = %+v", entry)
	}
}

func TestNotifyFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &fakeChannel{name: "primary-mail", configured: true, err: errors.New("rate limited")}
	fallback := &fakeChannel{name: "fallback-mail", configured: true}
	logs := &fakeLogStore{}
	d := NewDispatcher(logs, primary, fallback)

	out := d.Notify(context.Background(), uuid.New(), models.KindPaymentConfirmed, msg())

	if out.Status != models.NotificationSent || out.Channel != "fallback-mail" {
		t.Errorf("outcome = %+v, want SENT via fallback-mail", out)
	}
	if len(logs.entries) != 1 {
		t.Fatalf("wrote %d log rows, want exactly 1", len(logs.entries))
	}
}

func TestNotifySkipsUnconfiguredPrimary(t *testing.T) {
	primary := &fakeChannel{name: "primary-mail", configured: false}
	fallback := &fakeChannel{name: "fallback-mail", configured: true}
	logs := &fakeLogStore{}
	d := NewDispatcher(logs, primary, fallback)

	out := d.Notify(context.Background(), uuid.New(), models.KindBibAnnouncement, msg())

	if primary.calls != 0 {
		t.Error("unconfigured primary was attempted")
	}
	if out.Channel != "fallback-mail" || out.Status != models.NotificationSent {
		t.Errorf("outcome = %+v, want SENT via fallback-mail", out)
	}
}

func TestNotifyAllChannelsFail(t *testing.T) {
	primary := &fakeChannel{name: "primary-mail", configured: true, err: errors.New("timeout")}
	fallback := &fakeChannel{name: "fallback-mail", configured: true, err: errors.New("invalid key")}
	logs := &fakeLogStore{}
	d := NewDispatcher(logs, primary, fallback)

	out := d.Notify(context.Background(), uuid.New(), models.KindPaymentConfirmed, msg())

	if out.Status != models.NotificationFailed {
		t.Errorf("status = %q, want FAILED", out.Status)
	}
	if out.Error != "invalid key" {
		t.Errorf("error = %q, want the last channel's error", out.Error)
	}
	if len(logs.entries) != 1 {
		t.Fatalf("wrote %d log rows, want exactly 1", len(logs.entries))
	}
	entry := logs.entries[0]
	if entry.Status != models.NotificationFailed || entry.ErrorDetail == nil || *entry.ErrorDetail != "invalid key" {
		t.Errorf("log entry = %+v", entry)
	}
}

func TestNotifyNoChannelConfigured(t *testing.T) {
	logs := &fakeLogStore{}
	d := NewDispatcher(logs, &fakeChannel{name: "primary-mail"}, &fakeChannel{name: "fallback-mail"})

	out := d.Notify(context.Background(), uuid.New(), models.KindPaymentConfirmed, msg())

	if out.Status != models.NotificationFailed || out.Channel != "none" {
		t.Errorf("outcome = %+v, want FAILED with channel none", out)
	}
	if len(logs.entries) != 1 {
		t.Fatalf("wrote %d log rows, want exactly 1", len(logs.entries))
	}
}

func TestHasSentReadsTheLog(t *testing.T) {
	logs := &fakeLogStore{}
	d := NewDispatcher(logs, &fakeChannel{name: "primary-mail", configured: true})
	regID := uuid.New()

	sent, err := d.HasSent(context.Background(), regID, models.KindBibAnnouncement)
	if err != nil || sent {
		t.Fatalf("HasSent before dispatch = %v, %v", sent, err)
	}

	d.Notify(context.Background(), regID, models.KindBibAnnouncement, msg())

	sent, err = d.HasSent(context.Background(), regID, models.KindBibAnnouncement)
	if err != nil || !sent {
		t.Fatalf("HasSent after dispatch = %v, %v", sent, err)
	}
}
