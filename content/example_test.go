package content_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/full-stack-biz/mailboxer"
	"github.com/full-stack-biz/mailboxer/content"
	"github.com/full-stack-biz/mailboxer/store/memory"
)

// ExampleEncode demonstrates encoding structured data into a text-safe body.
func ExampleEncode() {
	type SensorReading struct {
		Temperature int    `json:"temperature"`
		Unit        string `json:"unit"`
	}

	reading := SensorReading{Temperature: 72, Unit: "F"}
	data, _ := json.Marshal(reading)

	registry := content.DefaultRegistry()
	body, _ := content.Encode(registry, "application/json", data)

	fmt.Println("body:", body)
	// Output:
	// body: {"temperature":72,"unit":"F"}
}

// This example demonstrates two services communicating through structured
// notifications.
//
// The order-service encodes an OrderPlaced struct into the notification
// body and carries the content type in the notification code. The
// fulfillment-service lists its notifications, routes on the code, and
// decodes the body back to the original struct.
//
// The same pattern works with binary formats: swap application/json for
// application/protobuf or application/msgpack. Binary codecs base64-encode
// the body automatically.
func Example_serviceToService() {
	ctx := context.Background()

	// -- shared types (both services import these) --

	type OrderPlaced struct {
		OrderID string `json:"order_id"`
		UserID  string `json:"user_id"`
		Total   int    `json:"total_cents"`
	}

	const orderCode = "application/json;schema=order.placed/v1"

	// -- infrastructure setup --

	svc, err := mailboxer.NewService(mailboxer.WithStore(memory.New()))
	if err != nil {
		log.Fatal(err)
	}
	if err := svc.Connect(ctx); err != nil {
		log.Fatal(err)
	}
	defer svc.Close(ctx)

	registry := content.DefaultRegistry()
	fulfillment := mailboxer.NewIdentity("service", "fulfillment")

	// -- order-service: sends a structured notification --

	order := OrderPlaced{
		OrderID: "ord-123",
		UserID:  "user-456",
		Total:   4999,
	}
	data, _ := json.Marshal(order)

	body, err := content.Encode(registry, orderCode, data)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := svc.Notify(ctx, []mailboxer.Identity{fulfillment}, mailboxer.NotifyRequest{
		Subject: "New Order",
		Body:    body,
		Code:    orderCode,
	}); err != nil {
		log.Fatal(err)
	}

	// -- fulfillment-service: receives and decodes the notification --

	notifications, err := svc.Mailbox(fulfillment).Notifications(ctx, mailboxer.ListOptions{})
	if err != nil {
		log.Fatal(err)
	}

	for _, receipt := range notifications.Receipts {
		payload, err := receipt.Payload(ctx)
		if err != nil {
			log.Fatal(err)
		}

		raw, err := content.Decode(registry, payload.NotificationCode, payload.Body)
		if err != nil {
			log.Fatal(err)
		}

		var received OrderPlaced
		if err := json.Unmarshal(raw, &received); err != nil {
			log.Fatal(err)
		}

		fmt.Println("order_id:", received.OrderID)
		fmt.Println("user_id:", received.UserID)
		fmt.Println("total_cents:", received.Total)
	}

	// Output:
	// order_id: ord-123
	// user_id: user-456
	// total_cents: 4999
}
