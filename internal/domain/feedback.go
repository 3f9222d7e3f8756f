package domain

import "io"

// Rating is a shopper's score for a product.
type Rating struct {
	ProductID string `json:"-"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment,omitempty" validate:"max=1000"`
}

// Testimonial is a public review of the shop, optionally with a photo.
type Testimonial struct {
	Name    string  `json:"name" validate:"required,max=100"`
	Message string  `json:"message" validate:"required,max=2000"`
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Image   *Upload `json:"-"`
}

// Upload is a file attached to a multipart submission.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Enquiry is a contact-form message.
type Enquiry struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message" validate:"required,max=2000"`
}
