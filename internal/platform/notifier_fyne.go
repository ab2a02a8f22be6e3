package platform

import (
	"context"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"github.com/google/uuid"

	"tock/internal/core/notify"
	"tock/internal/core/schedule"
)

// StickyMirror displays the running countdown somewhere always visible, such
// as the tray title, for hosts without resident notifications.
type StickyMirror interface {
	ShowSticky(title, body string)
	ClearSticky()
}

// FyneNotifier posts through the fyne app. Fyne notifications cannot be
// withdrawn, so sticky tickets go to the mirror instead of the OS.
type FyneNotifier struct {
	mu     sync.Mutex
	send   func(*fyne.Notification)
	mirror StickyMirror
	alarms *alarmBook
	sticky notify.TicketID
}

// NewFyneNotifier posts OS notifications through app.
func NewFyneNotifier(app fyne.App, mirror StickyMirror, scheduler schedule.Scheduler, options AlarmOptions) *FyneNotifier {
	send := func(notification *fyne.Notification) {
		fyne.Do(func() {
			app.SendNotification(notification)
		})
	}
	return newFyneNotifier(send, mirror, scheduler, options)
}

func newFyneNotifier(send func(*fyne.Notification), mirror StickyMirror, scheduler schedule.Scheduler, options AlarmOptions) *FyneNotifier {
	return &FyneNotifier{
		send:   send,
		mirror: mirror,
		alarms: newAlarmBook(scheduler, options),
	}
}

// Present shows content now.
func (notifier *FyneNotifier) Present(_ context.Context, content notify.Content) (notify.TicketID, error) {
	id := notify.TicketID(uuid.NewString())
	if content.Kind != notify.KindSticky {
		notifier.send(fyne.NewNotification(content.Title, content.Body))
		return id, nil
	}

	notifier.mu.Lock()
	notifier.sticky = id
	notifier.mu.Unlock()
	if notifier.mirror != nil {
		notifier.mirror.ShowSticky(content.Title, content.Body)
	}
	return id, nil
}

// Schedule arranges for content to appear at at.
func (notifier *FyneNotifier) Schedule(ctx context.Context, content notify.Content, at time.Time) (notify.TicketID, error) {
	return notifier.alarms.schedule(ctx, content, at, func(content notify.Content) {
		notifier.send(fyne.NewNotification(content.Title, content.Body))
	})
}

// Cancel withdraws a scheduled alarm.
func (notifier *FyneNotifier) Cancel(ctx context.Context, id notify.TicketID) error {
	handled, err := notifier.alarms.cancel(ctx, id)
	if handled {
		return err
	}
	return notifier.Dismiss(ctx, id)
}

// Dismiss clears the mirror when id is the current sticky ticket.
func (notifier *FyneNotifier) Dismiss(_ context.Context, id notify.TicketID) error {
	notifier.mu.Lock()
	current := notifier.sticky == id
	if current {
		notifier.sticky = ""
	}
	notifier.mu.Unlock()

	if current && notifier.mirror != nil {
		notifier.mirror.ClearSticky()
	}
	return nil
}
