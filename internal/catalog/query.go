package catalog

import (
	"context"

	"market-archive/internal/models"
)

// Filter selects instruments. Nil fields do not constrain the result.
type Filter struct {
	Date       *models.CivilDate
	DateFrom   *models.CivilDate // inclusive
	DateTo     *models.CivilDate // inclusive
	Instrument *string
	Exchange   *string
	IID        *int
}

// Record is the flattened projection returned by lookups.
type Record struct {
	Instrument  string `json:"instrument" gorm:"column:instrument"`
	Exchange    string `json:"exchange" gorm:"column:exchange"`
	IID         int    `json:"iid" gorm:"column:iid"`
	StorageType string `json:"storage_type" gorm:"column:storage_type"`
}

type condition struct {
	query string
	arg   interface{}
}

func (f Filter) conditions() []condition {
	var conds []condition
	if f.Date != nil {
		conds = append(conds, condition{"dates.date = ?", *f.Date})
	}
	if f.Instrument != nil {
		conds = append(conds, condition{"instruments.name = ?", *f.Instrument})
	}
	if f.Exchange != nil {
		conds = append(conds, condition{"exchanges.name = ?", *f.Exchange})
	}
	if f.IID != nil {
		conds = append(conds, condition{"instruments.iid = ?", *f.IID})
	}
	if f.DateFrom != nil {
		conds = append(conds, condition{"dates.date >= ?", *f.DateFrom})
	}
	if f.DateTo != nil {
		conds = append(conds, condition{"dates.date <= ?", *f.DateTo})
	}
	return conds
}

func (s *GormStore) Find(ctx context.Context, f Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).
		Table("instruments").
		Select("instruments.name AS instrument, exchanges.name AS exchange, instruments.iid AS iid, instruments.storage_type AS storage_type").
		Joins("JOIN exchanges ON exchanges.id = instruments.exchange_id").
		Joins("JOIN dates ON dates.id = exchanges.date_id")
	for _, c := range f.conditions() {
		q = q.Where(c.query, c.arg)
	}

	records := make([]Record, 0)
	if err := q.Order("dates.date ASC, exchanges.id ASC, instruments.id ASC").Scan(&records).Error; err != nil {
		return nil, &StorageError{Kind: "query", Attributes: f.attributes(), Err: err}
	}
	return records, nil
}

func (f Filter) attributes() map[string]interface{} {
	attrs := make(map[string]interface{})
	for _, c := range f.conditions() {
		attrs[c.query] = c.arg
	}
	return attrs
}
