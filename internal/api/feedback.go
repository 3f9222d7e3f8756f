package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
)

// RateProduct records a rating for r.ProductID.
func (c *Client) RateProduct(ctx context.Context, r domain.Rating) error {
	path := "/products/" + url.PathEscape(r.ProductID) + "/rate"
	if err := c.sendJSON(ctx, http.MethodPost, path, r, nil); err != nil {
		return fmt.Errorf("rate product %s: %w", r.ProductID, err)
	}
	return nil
}

// SubmitEnquiry sends a contact-form message.
func (c *Client) SubmitEnquiry(ctx context.Context, e domain.Enquiry) error {
	if err := c.sendJSON(ctx, http.MethodPost, "/enquiries", e, nil); err != nil {
		return fmt.Errorf("submit enquiry: %w", err)
	}
	return nil
}

// SubmitTestimonial posts a testimonial as multipart form data so the
// optional image travels with it.
func (c *Client) SubmitTestimonial(ctx context.Context, t domain.Testimonial) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"name", t.Name},
		{"message", t.Message},
		{"rating", strconv.Itoa(t.Rating)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("encode testimonial: %w", err)
		}
	}

	if t.Image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, t.Image.Filename))
		ct := t.Image.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return fmt.Errorf("encode testimonial image: %w", err)
		}
		if _, err := io.Copy(part, t.Image.Body); err != nil {
			return fmt.Errorf("encode testimonial image: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("encode testimonial: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/testimonials", nil, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	if err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("submit testimonial: %w", err)
	}
	return nil
}
