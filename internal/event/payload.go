package event

import "encoding/json"

// Payload is the typed event body. Each known event type carries its own
// variant; GenericPayload is the escape hatch for everything else.
type Payload interface {
	// Fields returns the payload as a flat map for memory records and
	// JSON responses.
	Fields() map[string]any
}

// IntrusionPayload is the body of "intrusion_detected" events.
type IntrusionPayload struct {
	CameraID string `json:"camera_id"`
	Location string `json:"location,omitempty"`
}

func (p *IntrusionPayload) Fields() map[string]any {
	return map[string]any{"camera_id": p.CameraID, "location": p.Location}
}

// MessagePayload is the body of "message_received" events.
type MessagePayload struct {
	Sender      string `json:"sender"`
	Platform    string `json:"platform"`
	Preview     string `json:"preview"`
	FullMessage string `json:"full_message,omitempty"`
}

func (p *MessagePayload) Fields() map[string]any {
	full := p.FullMessage
	if full == "" {
		full = p.Preview
	}
	return map[string]any{
		"sender":       p.Sender,
		"platform":     p.Platform,
		"preview":      p.Preview,
		"full_message": full,
	}
}

// TemperaturePayload is the body of "temperature_alert" events.
type TemperaturePayload struct {
	Temperature float64 `json:"temperature"`
	Location    string  `json:"location"`
}

func (p *TemperaturePayload) Fields() map[string]any {
	return map[string]any{"temperature": p.Temperature, "location": p.Location}
}

// PackagePayload is the body of "package_delivered" events.
type PackagePayload struct {
	TrackingCode string `json:"tracking_code"`
	Carrier      string `json:"carrier,omitempty"`
}

func (p *PackagePayload) Fields() map[string]any {
	return map[string]any{"tracking_code": p.TrackingCode, "carrier": p.Carrier}
}

// GenericPayload holds the raw body of event types with no dedicated variant.
type GenericPayload map[string]any

func (p GenericPayload) Fields() map[string]any { return map[string]any(p) }

// DecodePayload unmarshals raw into the variant registered for eventType.
// Unrecognized event types decode into GenericPayload.
func DecodePayload(eventType string, raw []byte) (Payload, error) {
	switch eventType {
	case "intrusion_detected":
		var p IntrusionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "message_received":
		var p MessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "temperature_alert":
		var p TemperaturePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "package_delivered":
		var p PackagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		var p GenericPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
}
