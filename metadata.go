package cqrs

// Metadata travels with every event of a command. The With methods return
// modified copies and never share the Custom map.
type Metadata struct {
	CorrelationID string            `json:"correlationId,omitempty" yaml:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty" yaml:"causationId,omitempty"`
	UserID        string            `json:"userId,omitempty" yaml:"userId,omitempty"`
	TenantID      string            `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	Custom        map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`
}

func (m Metadata) WithCorrelationID(id string) Metadata {
	m.CorrelationID = id
	return m
}

func (m Metadata) WithCausationID(id string) Metadata {
	m.CausationID = id
	return m
}

func (m Metadata) WithUserID(id string) Metadata {
	m.UserID = id
	return m
}

func (m Metadata) WithTenantID(id string) Metadata {
	m.TenantID = id
	return m
}

func (m Metadata) WithCustom(key, value string) Metadata {
	custom := make(map[string]string, len(m.Custom)+1)
	for k, v := range m.Custom {
		custom[k] = v
	}
	custom[key] = value
	m.Custom = custom
	return m
}

func (m Metadata) IsEmpty() bool {
	return m.CorrelationID == "" && m.CausationID == "" && m.UserID == "" &&
		m.TenantID == "" && len(m.Custom) == 0
}
