package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
	"github.com/itsobito471-bot/thebottlestories/pkg/httputil"
)

// maxUploadBody bounds testimonial uploads.
const maxUploadBody = 10 << 20

// RateProduct handles POST /api/v1/products/{id}/ratings
func (h *Handler) RateProduct(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var rating domain.Rating
	if err := decode(w, r, &rating); err != nil {
		h.writeError(w, r, err)
		return
	}
	rating.ProductID = chi.URLParam(r, "id")

	entry, err := s.Feedback.SubmitRating(r.Context(), rating)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, entry)
}

// SubmitTestimonial handles POST /api/v1/testimonials (multipart/form-data
// with name, message, rating and an optional image file).
func (h *Handler) SubmitTestimonial(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid multipart form: "+err.Error()))
		return
	}

	rating, err := strconv.Atoi(r.FormValue("rating"))
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput("rating must be a number"))
		return
	}
	t := domain.Testimonial{
		Name:    r.FormValue("name"),
		Message: r.FormValue("message"),
		Rating:  rating,
	}

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		t.Image = &domain.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		}
	case !errors.Is(err, http.ErrMissingFile):
		h.writeError(w, r, apperrors.InvalidInput("invalid image: "+err.Error()))
		return
	}

	entry, err := s.Feedback.SubmitTestimonial(r.Context(), t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, entry)
}

// SubmitEnquiry handles POST /api/v1/enquiries
func (h *Handler) SubmitEnquiry(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var enquiry domain.Enquiry
	if err := decode(w, r, &enquiry); err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := s.Feedback.SubmitEnquiry(r.Context(), enquiry)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, entry)
}

// ListFeedback handles GET /api/v1/feedback
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, s.Feedback.Recent())
}
