package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketvendor/vendor-sync/internal/replication"
	"github.com/marketvendor/vendor-sync/internal/timestamps"
	"go.uber.org/zap"
)

var errRequestNotObject = errors.New("request body must be a json object")

type pushRequestPayload struct {
	DeviceID json.RawMessage   `json:"deviceId"`
	Events   []json.RawMessage `json:"events"`
}

type pushResponsePayload struct {
	OK               bool    `json:"ok"`
	AcceptedEventIDs []int64 `json:"acceptedEventIds"`
}

type pullResponsePayload struct {
	Cursor int64              `json:"cursor"`
	Events []eventPayloadJSON `json:"events"`
}

type eventPayloadJSON struct {
	EventID          int64           `json:"event_id"`
	DeviceID         string          `json:"device_id"`
	Entity           string          `json:"entity"`
	EntityID         string          `json:"entity_id"`
	Op               string          `json:"op"`
	Payload          json.RawMessage `json:"payload"`
	ClientUpdatedAt  string          `json:"client_updated_at"`
	ServerReceivedAt string          `json:"server_received_at"`
	EventUUID        *string         `json:"event_uuid"`
}

type realtimeEventJSON struct {
	Cursor    int64    `json:"cursor"`
	EntityIDs []string `json:"entityIds"`
	DeviceID  string   `json:"deviceId,omitempty"`
	Timestamp string   `json:"timestamp"`
	Source    string   `json:"source"`
}

func (h *httpHandler) handlePush(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request pushRequestPayload
	if err := bindJSONObject(c, &request); err != nil {
		h.respondBindError(c, err)
		return
	}
	deviceID := looseString(request.DeviceID)
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_deviceId"})
		return
	}
	if request.Events == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_events"})
		return
	}

	result, err := h.sync.Push(c.Request.Context(), replication.PushRequest{
		UserID:   userID,
		DeviceID: deviceID,
		Events:   decodeEventInputs(request.Events),
	})
	if err != nil {
		h.logger.Error("push failed", zap.Error(err), zap.String("user_id", userID), zap.String("device_id", deviceID))
		response := gin.H{"error": "push_failed", "details": err.Error()}
		var serviceErr *replication.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, response)
		return
	}

	if len(result.Accepted) > 0 {
		h.realtime.Publish(RealtimeMessage{
			UserID:    userID,
			DeviceID:  deviceID,
			EventType: RealtimeEventSyncEvents,
			Cursor:    result.LastEventID(),
			EntityIDs: collectAcceptedEntityIDs(result.Accepted),
			Timestamp: time.Now().UTC(),
		})
	}

	c.JSON(http.StatusOK, pushResponsePayload{OK: true, AcceptedEventIDs: result.AcceptedEventIDs()})
}

func (h *httpHandler) handlePull(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	cursor, err := strconv.ParseInt(strings.TrimSpace(c.Query("cursor")), 10, 64)
	if err != nil {
		cursor = 0
	}
	// Unparseable limits fall back to the default page size.
	limit, err := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	if err != nil {
		limit = 0
	}

	result, err := h.sync.Pull(c.Request.Context(), userID, cursor, limit)
	if err != nil {
		h.logger.Error("pull failed", zap.Error(err), zap.String("user_id", userID))
		response := gin.H{"error": "pull_failed"}
		var serviceErr *replication.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, response)
		return
	}

	events := make([]eventPayloadJSON, 0, len(result.Events))
	for _, event := range result.Events {
		events = append(events, eventPayloadJSON{
			EventID:          event.EventID,
			DeviceID:         event.DeviceID,
			Entity:           event.Entity,
			EntityID:         event.EntityID,
			Op:               event.Op,
			Payload:          payloadJSON(event.Payload),
			ClientUpdatedAt:  timestamps.Format(event.ClientUpdatedAt),
			ServerReceivedAt: timestamps.Format(event.ServerReceivedAt),
			EventUUID:        event.EventUUID,
		})
	}
	c.JSON(http.StatusOK, pullResponsePayload{Cursor: result.Cursor, Events: events})
}

func (h *httpHandler) handleStream(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	deviceID := strings.TrimSpace(c.Query("deviceId"))

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID, deviceID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(message.EventType, realtimeEventJSON{
				Cursor:    message.Cursor,
				EntityIDs: message.EntityIDs,
				DeviceID:  message.DeviceID,
				Timestamp: timestamps.Format(message.Timestamp),
				Source:    realtimeSourceBackend,
			})
			c.Writer.Flush()
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": timestamps.Format(tick), "source": realtimeSourceBackend})
			c.Writer.Flush()
		}
	}
}

func payloadJSON(payload []byte) json.RawMessage {
	if len(bytes.TrimSpace(payload)) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(payload)
}

// decodeEventInputs keeps events in order. Fields of the wrong type read as absent, which the
// service treats as an incomplete event.
func decodeEventInputs(raw []json.RawMessage) []replication.EventInput {
	inputs := make([]replication.EventInput, 0, len(raw))
	for _, item := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			inputs = append(inputs, replication.EventInput{})
			continue
		}
		inputs = append(inputs, replication.EventInput{
			Entity:          looseString(fields["entity"]),
			EntityID:        looseString(fields["entityId"]),
			Op:              looseString(fields["op"]),
			Payload:         fields["payload"],
			ClientUpdatedAt: looseString(fields["clientUpdatedAt"]),
			EventUUID:       looseString(fields["eventUuid"]),
		})
	}
	return inputs
}

// looseString reads JSON strings as-is and numbers as their literal text.
func looseString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err == nil {
		return number.String()
	}
	return ""
}

func collectAcceptedEntityIDs(accepted []replication.AcceptedEvent) []string {
	seen := make(map[string]struct{}, len(accepted))
	var ids []string
	for _, event := range accepted {
		if event.EntityID == "" {
			continue
		}
		if _, ok := seen[event.EntityID]; ok {
			continue
		}
		seen[event.EntityID] = struct{}{}
		ids = append(ids, event.EntityID)
	}
	sort.Strings(ids)
	return ids
}

// bindJSONObject decodes a JSON object body. An empty body reads as an empty object.
func bindJSONObject(c *gin.Context, target any) error {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '{' {
		return errRequestNotObject
	}
	return json.Unmarshal(trimmed, target)
}

func (h *httpHandler) respondBindError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
		return
	}
	h.logger.Debug("invalid request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}
