package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotbook/internal/models"
)

type codeData struct {
	Brand   string
	Year    int
	Code    string
	Minutes int
}

type bookingData struct {
	Brand    string
	Year     int
	Booking  *models.Booking
	Duration string
}

// EmailNotifier renders and sends the verification code, the customer
// confirmation and the operator notification.
type EmailNotifier struct {
	sender   Sender
	brand    string
	operator string
	duration time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewEmailNotifier(sender Sender, brand, operatorEmail string, meetingDuration, timeout time.Duration) *EmailNotifier {
	return &EmailNotifier{
		sender:   sender,
		brand:    brand,
		operator: operatorEmail,
		duration: meetingDuration,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (n *EmailNotifier) send(ctx context.Context, msg Message) error {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	return n.sender.Send(ctx, msg)
}

func (n *EmailNotifier) SendCode(ctx context.Context, email, code string, ttl time.Duration) error {
	html, err := render("code", codeData{
		Brand:   n.brand,
		Year:    n.now().Year(),
		Code:    code,
		Minutes: int(ttl / time.Minute),
	})
	if err != nil {
		return err
	}
	return n.send(ctx, Message{
		To:      email,
		Subject: fmt.Sprintf("%s: your verification code", n.brand),
		HTML:    html,
		Text:    fmt.Sprintf("Your verification code is %s. It is valid for %d minutes.", code, int(ttl/time.Minute)),
	})
}

func (n *EmailNotifier) bookingData(b *models.Booking) bookingData {
	return bookingData{Brand: n.brand, Year: n.now().Year(), Booking: b, Duration: humanDuration(n.duration)}
}

// Customer returns the notifier that mails the booking confirmation to the customer.
func (n *EmailNotifier) Customer() *CustomerEmail { return &CustomerEmail{n} }

// Operator returns the notifier that mails new bookings to the operator inbox.
func (n *EmailNotifier) Operator() *OperatorEmail { return &OperatorEmail{n} }

type CustomerEmail struct{ n *EmailNotifier }

func (c *CustomerEmail) Name() string { return "customer_email" }

func (c *CustomerEmail) NotifyBooked(ctx context.Context, b *models.Booking) error {
	html, err := render("customer", c.n.bookingData(b))
	if err != nil {
		return err
	}
	return c.n.send(ctx, Message{
		To:      b.Email,
		Subject: fmt.Sprintf("%s: booking confirmed %s %s", c.n.brand, b.Date, b.Slot),
		HTML:    html,
		Text: fmt.Sprintf("Hi %s, your booking on %s at %s is confirmed.\nMeeting link: %s\n",
			b.Name, b.Date, b.Slot, b.MeetingLink),
	})
}

type OperatorEmail struct{ n *EmailNotifier }

func (o *OperatorEmail) Name() string { return "operator_email" }

func (o *OperatorEmail) NotifyBooked(ctx context.Context, b *models.Booking) error {
	if o.n.operator == "" {
		return errors.New("operator email is not configured")
	}
	html, err := render("operator", o.n.bookingData(b))
	if err != nil {
		return err
	}
	return o.n.send(ctx, Message{
		To:      o.n.operator,
		Subject: fmt.Sprintf("New booking: %s %s %s", b.Name, b.Date, b.Slot),
		HTML:    html,
		Text:    operatorText(b),
	})
}

func operatorText(b *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New booking\n\n")
	fmt.Fprintf(&sb, "Name: %s\n", b.Name)
	fmt.Fprintf(&sb, "Email: %s\n", b.Email)
	fmt.Fprintf(&sb, "Phone: %s\n", b.Phone)
	fmt.Fprintf(&sb, "Customer: %s\n", b.CustomerType.Label())
	if b.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", b.Description)
	}
	fmt.Fprintf(&sb, "Date: %s %s\n", b.Date, b.Slot)
	fmt.Fprintf(&sb, "Meeting: %s\n", b.MeetingLink)
	return sb.String()
}
