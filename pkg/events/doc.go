/*
Package events provides an in-process event bus for decoupling components via domain events.

It defines a standard Event structure and a Bus interface for Publish/Subscribe patterns.
This package is intended for local process constraints. For distributed messaging, see pkg/messaging.

Usage:

	b := events.NewBusAdapter(bus.Default())
	b.Subscribe(ctx, "users", func(ctx context.Context, e events.Event) error {
	    // Handle event
	    return nil
	})

	b.Publish(ctx, "users", events.Event{Type: "user.created", Payload: user})
*/
package events
