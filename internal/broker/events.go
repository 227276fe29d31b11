package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"delivery-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishDeliveryCreated publishes DeliveryCreated event
func (ep *EventPublisher) PublishDeliveryCreated(ctx context.Context, event *models.DeliveryCreatedEvent) error {
	key := fmt.Sprintf("delivery-%d", event.DeliveryID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishDeliveryStatusChanged publishes DeliveryStatusChanged event
func (ep *EventPublisher) PublishDeliveryStatusChanged(ctx context.Context, event *models.DeliveryStatusChangedEvent) error {
	key := fmt.Sprintf("delivery-%d", event.DeliveryID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishDeliveryDeleted publishes DeliveryDeleted event
func (ep *EventPublisher) PublishDeliveryDeleted(ctx context.Context, event *models.DeliveryDeletedEvent) error {
	key := fmt.Sprintf("delivery-%d", event.DeliveryID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishProductAssigned publishes ProductAssigned event
func (ep *EventPublisher) PublishProductAssigned(ctx context.Context, event *models.ProductAssignedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishProductStatusChanged publishes ProductStatusChanged event
func (ep *EventPublisher) PublishProductStatusChanged(ctx context.Context, event *models.ProductStatusChangedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishUserDeleted publishes UserDeleted event
func (ep *EventPublisher) PublishUserDeleted(ctx context.Context, event *models.UserDeletedEvent) error {
	key := fmt.Sprintf("user-%d", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming delivery events to registered callbacks
type EventHandler struct {
	onDeliveryCreated       func(context.Context, *models.DeliveryCreatedEvent) error
	onDeliveryStatusChanged func(context.Context, *models.DeliveryStatusChangedEvent) error
	onDeliveryDeleted       func(context.Context, *models.DeliveryDeletedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnDeliveryCreated registers a handler for DeliveryCreated events
func (eh *EventHandler) OnDeliveryCreated(handler func(context.Context, *models.DeliveryCreatedEvent) error) {
	eh.onDeliveryCreated = handler
}

// OnDeliveryStatusChanged registers a handler for DeliveryStatusChanged events
func (eh *EventHandler) OnDeliveryStatusChanged(handler func(context.Context, *models.DeliveryStatusChangedEvent) error) {
	eh.onDeliveryStatusChanged = handler
}

// OnDeliveryDeleted registers a handler for DeliveryDeleted events
func (eh *EventHandler) OnDeliveryDeleted(handler func(context.Context, *models.DeliveryDeletedEvent) error) {
	eh.onDeliveryDeleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeDeliveryCreated:
		if eh.onDeliveryCreated != nil {
			var event models.DeliveryCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DeliveryCreated event: %w", err)
			}
			return eh.onDeliveryCreated(ctx, &event)
		}

	case models.EventTypeDeliveryStatusChanged:
		if eh.onDeliveryStatusChanged != nil {
			var event models.DeliveryStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DeliveryStatusChanged event: %w", err)
			}
			return eh.onDeliveryStatusChanged(ctx, &event)
		}

	case models.EventTypeDeliveryDeleted:
		if eh.onDeliveryDeleted != nil {
			var event models.DeliveryDeletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DeliveryDeleted event: %w", err)
			}
			return eh.onDeliveryDeleted(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
