package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const (
	pathStats        = "/admin/stats"
	pathDoctors      = "/admin/doctors"
	pathUsers        = "/admin/users"
	pathLabBookings  = "/admin/lab-bookings"
	pathLabReports   = "/admin/lab-reports"
	pathMedicines    = "/admin/medicines"
	pathOrders       = "/admin/orders"
	pathArticles     = "/articles"
	pathCompensation = "/admin/compensation"
	pathReviews      = "/reviews"
)

func list[T any](ctx context.Context, c *Client, path string, q ListQuery) (*Page[T], error) {
	var page Page[T]
	if err := c.Get(ctx, path, q.Values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.Get(ctx, pathStats, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Doctors(ctx context.Context, q ListQuery) (*Page[Doctor], error) {
	return list[Doctor](ctx, c, pathDoctors, q)
}

func (c *Client) Users(ctx context.Context, q ListQuery) (*Page[User], error) {
	return list[User](ctx, c, pathUsers, q)
}

func (c *Client) LabBookings(ctx context.Context, q ListQuery) (*Page[LabBooking], error) {
	return list[LabBooking](ctx, c, pathLabBookings, q)
}

func (c *Client) LabReports(ctx context.Context, q ListQuery) (*Page[LabReport], error) {
	return list[LabReport](ctx, c, pathLabReports, q)
}

func (c *Client) Medicines(ctx context.Context, q ListQuery) (*Page[Medicine], error) {
	return list[Medicine](ctx, c, pathMedicines, q)
}

func (c *Client) Orders(ctx context.Context, q ListQuery) (*Page[Order], error) {
	return list[Order](ctx, c, pathOrders, q)
}

func (c *Client) Articles(ctx context.Context, q ListQuery) (*Page[Article], error) {
	return list[Article](ctx, c, pathArticles, q)
}

func (c *Client) Compensation(ctx context.Context, q ListQuery) (*Page[Compensation], error) {
	return list[Compensation](ctx, c, pathCompensation, q)
}

func (c *Client) Reviews(ctx context.Context, q ListQuery) (*Page[Review], error) {
	return list[Review](ctx, c, pathReviews, q)
}

//
// ================= MUTATIONS =================
//

func (c *Client) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	var d Doctor
	if err := c.Send(ctx, http.MethodPost, pathDoctors, in, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) UpdateDoctor(ctx context.Context, id string, in DoctorInput) (*Doctor, error) {
	var d Doctor
	if err := c.Send(ctx, http.MethodPut, pathDoctors+"/"+url.PathEscape(id), in, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) DeleteDoctor(ctx context.Context, id string) error {
	return c.Send(ctx, http.MethodDelete, pathDoctors+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateMedicine(ctx context.Context, in MedicineInput) (*Medicine, error) {
	var m Medicine
	if err := c.Send(ctx, http.MethodPost, pathMedicines, in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) UpdateMedicine(ctx context.Context, id string, in MedicineInput) (*Medicine, error) {
	var m Medicine
	if err := c.Send(ctx, http.MethodPut, pathMedicines+"/"+url.PathEscape(id), in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateOrderStatus moves an order to status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id, status string) (*Order, error) {
	if !ValidOrderStatus(status) {
		return nil, fmt.Errorf("unknown order status %q", status)
	}
	var o Order
	body := map[string]string{"status": status}
	if err := c.Send(ctx, http.MethodPatch, pathOrders+"/"+url.PathEscape(id)+"/status", body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// UploadLabReport attaches a report file to a lab booking.
func (c *Client) UploadLabReport(ctx context.Context, bookingID string, up LabReportUpload) (*LabReport, error) {
	var r LabReport
	if err := c.Send(ctx, http.MethodPost, pathLabBookings+"/"+url.PathEscape(bookingID)+"/report", up, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) CreateArticle(ctx context.Context, in ArticleInput) (*Article, error) {
	var a Article
	if err := c.Send(ctx, http.MethodPost, "/admin/articles", in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// PayCompensation records a payout to a doctor.
func (c *Client) PayCompensation(ctx context.Context, p Payout) (*Compensation, error) {
	var comp Compensation
	if err := c.Send(ctx, http.MethodPost, pathCompensation+"/payouts", p, &comp); err != nil {
		return nil, err
	}
	return &comp, nil
}

// SubmitReview posts a patient review form.
func (c *Client) SubmitReview(ctx context.Context, in ReviewInput) (*Review, error) {
	var r Review
	if err := c.Send(ctx, http.MethodPost, pathReviews, in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
