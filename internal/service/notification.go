package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"fare/internal/domain"
)

// CrisisNotifier delivers emergency-control notifications to the crisis
// management channel. Unlike the audit trail this is synchronous: creation
// of an emergency override does not complete until the notification fires.
type CrisisNotifier interface {
	NotifyEmergencyOverride(ctx context.Context, o *domain.Override) error
}

// NotificationType classifies operator notifications.
type NotificationType string

const (
	NotificationEmergencyOverride NotificationType = "EMERGENCY_OVERRIDE"
	NotificationServiceSuspended  NotificationType = "SERVICE_SUSPENDED"
	NotificationOverrideRevoked   NotificationType = "OVERRIDE_REVOKED"
)

// Notification represents an operator-facing notification.
type Notification struct {
	Type      NotificationType
	Channel   string
	Title     string
	Message   string
	Data      map[string]interface{}
	CreatedAt time.Time
}

// NotificationService delivers operator notifications.
type NotificationService struct {
	// In a real system, this would have:
	// - Crisis-channel client (PagerDuty, Opsgenie)
	// - Chat client (Slack webhook)
	// - Email client for regulator liaison
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotifyEmergencyOverride pages the crisis-management channel about an
// emergency control being placed on pricing.
func (s *NotificationService) NotifyEmergencyOverride(ctx context.Context, o *domain.Override) error {
	return s.send(ctx, Notification{
		Type:    NotificationEmergencyOverride,
		Channel: "crisis-management",
		Title:   "Emergency Pricing Control Activated",
		Message: fmt.Sprintf("Emergency override %s issued by %s: %s", o.ID, o.IssuedBy.OperatorID, o.Reason),
		Data: map[string]interface{}{
			"override_id":    o.ID,
			"operator_id":    o.IssuedBy.OperatorID,
			"approval_level": o.IssuedBy.ApprovalLevel,
			"scope_type":     o.Scope.Type,
			"service_types":  o.ServiceTypes,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyServiceSuspended informs operators that quoting is suspended in an area.
func (s *NotificationService) NotifyServiceSuspended(ctx context.Context, o *domain.Override) error {
	return s.send(ctx, Notification{
		Type:    NotificationServiceSuspended,
		Channel: "operations",
		Title:   "Service Suspended",
		Message: fmt.Sprintf("Service suspended by override %s: %s", o.ID, o.Parameters.SuspensionReason),
		Data: map[string]interface{}{
			"override_id":   o.ID,
			"service_types": o.ServiceTypes,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyOverrideRevoked informs operators that an override was lifted.
func (s *NotificationService) NotifyOverrideRevoked(ctx context.Context, o *domain.Override, reason string) error {
	return s.send(ctx, Notification{
		Type:    NotificationOverrideRevoked,
		Channel: "operations",
		Title:   "Override Revoked",
		Message: fmt.Sprintf("Override %s (%s) revoked: %s", o.ID, o.Type, reason),
		Data: map[string]interface{}{
			"override_id": o.ID,
			"type":        o.Type,
		},
		CreatedAt: time.Now(),
	})
}

// send delivers a notification (mock implementation).
func (s *NotificationService) send(ctx context.Context, n Notification) error {
	// In a real implementation, this would post to the paging provider
	// and return its delivery error.
	log.Printf("[NOTIFY] Channel=%s, Type=%s, Title=%s, Message=%s",
		n.Channel, n.Type, n.Title, n.Message)
	return nil
}
