package model

import "time"

// Identity is the durable record behind a device key.
// DeviceKey -> ID never changes once the row exists.
type Identity struct {
	ID          uint64    `json:"user_id" gorm:"primaryKey;autoIncrement"`
	DeviceKey   string    `json:"device_key" gorm:"size:255;uniqueIndex;not null"`
	Online      bool      `json:"online" gorm:"index;not null;default:false"`
	PushToken   string    `json:"-" gorm:"size:512"`
	DeviceModel string    `json:"device_model,omitempty" gorm:"size:100"`
	OSVersion   string    `json:"os_version,omitempty" gorm:"size:50"`
	AppVersion  string    `json:"app_version,omitempty" gorm:"size:50"`
	LastSeen    time.Time `json:"last_seen" gorm:"index;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Identity) TableName() string {
	return "identities"
}

// DeviceInfo is the optional metadata a client sends along with its device key
type DeviceInfo struct {
	PushToken   string `json:"push_token,omitempty"`
	DeviceModel string `json:"device_model,omitempty"`
	OSVersion   string `json:"os_version,omitempty"`
	AppVersion  string `json:"app_version,omitempty"`
}

// Updates returns the non-empty metadata columns, so a bare re-registration
// never erases what an earlier one stored.
func (d DeviceInfo) Updates() map[string]interface{} {
	updates := map[string]interface{}{}
	if d.PushToken != "" {
		updates["push_token"] = d.PushToken
	}
	if d.DeviceModel != "" {
		updates["device_model"] = d.DeviceModel
	}
	if d.OSVersion != "" {
		updates["os_version"] = d.OSVersion
	}
	if d.AppVersion != "" {
		updates["app_version"] = d.AppVersion
	}
	return updates
}

// Peer is one entry of a peer list
type Peer struct {
	UserID    uint64    `json:"user_id"`
	DeviceKey string    `json:"device_key"`
	Online    bool      `json:"online"`
	LastSeen  time.Time `json:"last_seen"`
}
