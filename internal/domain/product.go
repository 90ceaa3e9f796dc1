package domain

// LocalProduct represents a product of the store's own catalog
type LocalProduct struct {
	SKU   string `json:"sku" gorm:"column:sku"`
	Title string `json:"title" gorm:"column:title"`
}

// RemoteProduct represents a product row from the SIGE catalog dump
type RemoteProduct struct {
	RemoteID    string         `json:"remoteId"`    // SIGE internal numeric id
	Code        string         `json:"code"`        // SIGE product code
	Description string         `json:"description"`
	TypeCode    string         `json:"typeCode,omitempty"`
	RawFields   map[string]any `json:"rawFields,omitempty"`
}

// RemoteProductFilter narrows a SIGE catalog listing
type RemoteProductFilter struct {
	Code     string
	Page     int
	PageSize int
}
