package cart

import "time"

// Item is one cart line. Price is the line total (unit price already
// multiplied by Quantity), stored as NUMERIC -> string.
type Item struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Price     string    `json:"price"`
	Quantity  int       `json:"quantity"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddItemRequest payload for adding a cart line. Price is per unit; the
// stored line total is price * quantity.
// swagger:model AddItemRequest
type AddItemRequest struct {
	Title    string `json:"title"    example:"Coffee Mug"`
	Price    string `json:"price"    example:"5.00"`
	Quantity int    `json:"quantity" example:"2"`
	Image    string `json:"image"    example:"https://cdn.example.com/mug.png"`
}

// UpdateQuantityRequest payload for changing a line's quantity.
// swagger:model UpdateQuantityRequest
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" example:"3"`
}
