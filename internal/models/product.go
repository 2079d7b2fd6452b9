package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is the catalog entry as seen by checkout. Catalog management owns
// every other field; checkout only moves StockQuantity and InStock.
type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Price         float64            `bson:"price" json:"price"`
	SaleEnabled   bool               `bson:"saleEnabled" json:"saleEnabled"`
	SalePrice     float64            `bson:"salePrice" json:"salePrice"`
	Emoji         string             `bson:"emoji,omitempty" json:"emoji,omitempty"`
	StockQuantity int                `bson:"stockQuantity" json:"stockQuantity"`
	InStock       bool               `bson:"inStock" json:"inStock"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// OnSale reports whether the sale price currently applies.
func (p Product) OnSale() bool {
	return p.SaleEnabled && p.SalePrice > 0 && p.SalePrice < p.Price
}

// UnitPrice is the price frozen into an order line.
func (p Product) UnitPrice() float64 {
	if p.OnSale() {
		return p.SalePrice
	}
	return p.Price
}
