package models

import (
	"time"
)

// Entity is a row that can be looked up by its complete attribute set.
type Entity interface {
	Kind() string
	// Attributes returns the exact-match key keyed by column name. Zero values are included.
	Attributes() map[string]interface{}
	Identity() uint
}

// AllModels lists the catalog tables parents first.
func AllModels() []interface{} {
	return []interface{}{&Date{}, &Exchange{}, &Instrument{}}
}

// Date is one archived calendar day
type Date struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Date      CivilDate  `json:"date" gorm:"not null;index"`
	CreatedAt time.Time  `json:"created_at"`
	Exchanges []Exchange `json:"exchanges,omitempty" gorm:"foreignKey:DateID;constraint:OnDelete:CASCADE"`
}

func (d *Date) Kind() string   { return "date" }
func (d *Date) Identity() uint { return d.ID }

func (d *Date) Attributes() map[string]interface{} {
	return map[string]interface{}{
		"date": d.Date,
	}
}

// Exchange is a venue recorded on a given day. Two rows with the same name but a
// different location on the same day are distinct.
type Exchange struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	DateID      uint         `json:"date_id" gorm:"not null;index"`
	Name        string       `json:"name" gorm:"size:256;not null;index"`
	Location    string       `json:"location" gorm:"size:256;not null"`
	Instruments []Instrument `json:"instruments,omitempty" gorm:"foreignKey:ExchangeID;constraint:OnDelete:CASCADE"`
}

func (e *Exchange) Kind() string   { return "exchange" }
func (e *Exchange) Identity() uint { return e.ID }

func (e *Exchange) Attributes() map[string]interface{} {
	return map[string]interface{}{
		"date_id":  e.DateID,
		"name":     e.Name,
		"location": e.Location,
	}
}

// Instrument is a traded symbol with data available on an exchange for the day
type Instrument struct {
	ID                     uint      `json:"id" gorm:"primaryKey"`
	ExchangeID             uint      `json:"exchange_id" gorm:"not null;index"`
	Name                   string    `json:"name" gorm:"size:256;not null;index"`
	StorageType            string    `json:"storage_type" gorm:"size:256;not null"`
	Levels                 string    `json:"levels" gorm:"size:256;not null"`
	IID                    int       `json:"iid" gorm:"column:iid;not null;index"`
	AvailableIntervalBegin TimeOfDay `json:"available_interval_begin" gorm:"not null"`
	AvailableIntervalEnd   TimeOfDay `json:"available_interval_end" gorm:"not null"`
}

func (i *Instrument) Kind() string   { return "instrument" }
func (i *Instrument) Identity() uint { return i.ID }

func (i *Instrument) Attributes() map[string]interface{} {
	return map[string]interface{}{
		"exchange_id":              i.ExchangeID,
		"name":                     i.Name,
		"storage_type":             i.StorageType,
		"levels":                   i.Levels,
		"iid":                      i.IID,
		"available_interval_begin": i.AvailableIntervalBegin,
		"available_interval_end":   i.AvailableIntervalEnd,
	}
}
