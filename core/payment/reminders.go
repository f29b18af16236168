package payment

import (
	"context"
	"fmt"
	"net/mail"
	texttmpl "text/template"

	"github.com/pkg/errors"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/user"
)

var (
	dueReminderTmpl = texttmpl.Must(texttmpl.New("due").Parse(`Hello {{.Name}},

you have {{len .Payments}} {{.Status}} payment(s):
{{range .Payments}}
  - {{.Description}}: {{printf "%.2f" .Amount}} EUR, due {{.DueDate.Format "2006-01-02"}}
{{- end}}

Please settle them at the school office.
`))

	renewalReminderTmpl = texttmpl.Must(texttmpl.New("renewal").Parse(`Hello {{.Name}},

your annual enrollment "{{.Payment.Description}}" expires on {{.Payment.ValidTo.Format "2006-01-02"}}.
Remember to renew it.
`))
)

type dueReminderData struct {
	Name     string
	Status   Status
	Payments []Payment
}

type renewalReminderData struct {
	Name    string
	Payment Payment
}

// SendReminders emails every active user holding visible payments in the given status.
func (svc *Service) SendReminders(ctx context.Context, status Status) (ReminderResult, error) {
	if status != StatusPending && status != StatusOverdue {
		return ReminderResult{}, core.NewFieldError("status", "must be one of: pending, overdue")
	}
	payments, err := svc.repo.QueryPayments(ctx, Filter{Status: status, VisibleOnly: true})
	if err != nil {
		return ReminderResult{}, errors.Wrap(err, "querying payments")
	}

	byUser := make(map[string][]Payment)
	order := make([]string, 0)
	for _, p := range payments {
		if _, ok := byUser[p.UserID]; !ok {
			order = append(order, p.UserID)
		}
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	res := ReminderResult{Status: status}
	msgs := make([]*core.EmailMessage, 0, len(order))
	for _, userID := range order {
		usr, ok, err := svc.recipient(ctx, userID)
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{usr.Address()},
			Subject:      fmt.Sprintf("Payment reminder: %s payments", status),
			Template:     dueReminderTmpl,
			TemplateData: dueReminderData{Name: usr.FirstName, Status: status, Payments: byUser[userID]},
		})
		res.Recipients++
	}
	svc.mailSvc.SendMessages(msgs...)
	return res, nil
}

// SendRenewalReminders emails the holders of annual payments expiring within the horizon.
func (svc *Service) SendRenewalReminders(ctx context.Context, days *int) (ReminderResult, error) {
	expiring, err := svc.ExpiringAnnual(ctx, days)
	if err != nil {
		return ReminderResult{}, err
	}

	var res ReminderResult
	msgs := make([]*core.EmailMessage, 0, len(expiring))
	for _, p := range expiring {
		usr, ok, err := svc.recipient(ctx, p.UserID)
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{usr.Address()},
			Subject:      "Annual enrollment expiring",
			Template:     renewalReminderTmpl,
			TemplateData: renewalReminderData{Name: usr.FirstName, Payment: p},
		})
		res.Recipients++
	}
	svc.mailSvc.SendMessages(msgs...)
	return res, nil
}

// recipient returns the user to remind; deleted and inactive users are skipped.
func (svc *Service) recipient(ctx context.Context, userID string) (user.User, bool, error) {
	usr, err := svc.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, false, nil
		}
		return user.User{}, false, errors.Wrap(err, "finding payment holder")
	}
	return usr, usr.IsActive, nil
}
