package domain

import "time"

// Product — каталожный товар. Ядро читает его целиком, но мутирует только
// поле Stock через DecrementStock/RestoreStock репозитория.
type Product struct {
	ID         string
	Name       string
	SKU        string
	PriceMinor int64
	// Stock — доступное количество; никогда не уходит в минус
	// (декремент ограничен нулём).
	Stock     int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sellable сообщает, можно ли сейчас продать товар.
func (p Product) Sellable() bool {
	return p.IsActive && p.Stock > 0
}
