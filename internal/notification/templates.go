package notification

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/minicart-io/minicart/pkg/schemas/orders"
	"github.com/minicart-io/minicart/pkg/schemas/users"
)

var orderCreatedTmpl = template.Must(template.New("order-created").Parse(
	`Hello,

Thank you for your order {{.OrderNumber}}.

{{range .Items}}  {{.Quantity}} x {{.ProductName}}: {{printf "%.2f" .Subtotal}}
{{end}}
Total: {{printf "%.2f" .TotalAmount}}

We will let you know when it ships.
`))

var orderCancelledTmpl = template.Must(template.New("order-cancelled").Parse(
	`Hello,

Your order {{.OrderNumber}} has been cancelled.

If you did not request this, please contact support.
`))

var userRegisteredTmpl = template.Must(template.New("user-registered").Parse(
	`Hi {{.Name}},

Welcome aboard! Your account ({{.Email}}) is ready.
`))

var userLoggedInTmpl = template.Must(template.New("user-logged-in").Parse(
	`Hi {{.Name}},

A new login to your account was detected.

  IP address: {{.IPAddress}}
  Client:     {{.UserAgent}}

If this was not you, reset your password immediately.
`))

func renderOrderCreated(data orders.CreatedData) (Message, error) {
	body, err := render(orderCreatedTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: fmt.Sprintf("Order confirmed: %s", data.OrderNumber),
		Body:    body,
	}, nil
}

func renderOrderCancelled(data orders.CancelledData) (Message, error) {
	body, err := render(orderCancelledTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: fmt.Sprintf("Order cancelled: %s", data.OrderNumber),
		Body:    body,
	}, nil
}

func renderUserRegistered(data users.RegisteredData) (Message, error) {
	body, err := render(userRegisteredTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: "Welcome to minicart", Body: body}, nil
}

func renderUserLoggedIn(data users.LoggedInData) (Message, error) {
	body, err := render(userLoggedInTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: "New login to your account", Body: body}, nil
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}
