package broker

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format every outbound event carries.
type Envelope struct {
	EventID           string         `json:"eventId"`
	SourceApplication string         `json:"sourceApplication"`
	TargetApplication string         `json:"targetApplication"`
	TenantID          uuid.UUID      `json:"tenantId"`
	EntityID          *uuid.UUID     `json:"entityId,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	EventType         string         `json:"eventType"`
	Data              map[string]any `json:"eventData"`
	PublishedBy       string         `json:"publishedBy"`
}

// newEventID mints an id shaped "inter_{unixMillis}_{random8}".
func newEventID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])

	return fmt.Sprintf("inter_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

// RoutingKey derives "{targetApplication}.{eventType-with-'_'->'.'}".
func RoutingKey(targetApplication, eventType string) string {
	return targetApplication + "." + strings.ReplaceAll(eventType, "_", ".")
}

// publishedByOrSystem renders a nil initiator as "system".
func publishedByOrSystem(publishedBy *uuid.UUID) string {
	if publishedBy == nil {
		return "system"
	}

	return publishedBy.String()
}
