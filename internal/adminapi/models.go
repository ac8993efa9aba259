package adminapi

import (
	"net/url"
	"sort"
	"strconv"
	"time"
)

// Page is the backend's paginated list envelope.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ListQuery holds the filters of a list view.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
	Status string
	Extra  map[string]string
}

// Params returns the non-empty filters. It is what cache keys are built from,
// so two queries with the same filters map to the same key.
func (q ListQuery) Params() map[string]string {
	p := make(map[string]string, 4+len(q.Extra))
	for k, v := range q.Extra {
		if v != "" {
			p[k] = v
		}
	}
	if q.Page > 0 {
		p["page"] = strconv.Itoa(q.Page)
	}
	if q.Limit > 0 {
		p["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Search != "" {
		p["search"] = q.Search
	}
	if q.Status != "" {
		p["status"] = q.Status
	}
	return p
}

// Values is Params as a URL query.
func (q ListQuery) Values() url.Values {
	params := q.Params()
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	v := make(url.Values, len(params))
	for _, k := range names {
		v.Set(k, params[k])
	}
	return v
}

// Stats are the dashboard aggregates.
type Stats struct {
	Doctors            int     `json:"doctors"`
	Users              int     `json:"users"`
	Orders             int     `json:"orders"`
	PendingOrders      int     `json:"pendingOrders"`
	LabBookings        int     `json:"labBookings"`
	PendingLabBookings int     `json:"pendingLabBookings"`
	Medicines          int     `json:"medicines"`
	LowStockMedicines  int     `json:"lowStockMedicines"`
	Revenue            float64 `json:"revenue"`
}

type Doctor struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Specialization string    `json:"specialization"`
	Fee            float64   `json:"fee"`
	Available      bool      `json:"available"`
	Rating         float64   `json:"rating,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DoctorInput is the body of create and update doctor requests.
type DoctorInput struct {
	Name           string  `json:"name" binding:"required"`
	Email          string  `json:"email" binding:"required,email"`
	Phone          string  `json:"phone,omitempty"`
	Specialization string  `json:"specialization" binding:"required"`
	Fee            float64 `json:"fee" binding:"gte=0"`
	Available      bool    `json:"available"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"createdAt"`
}

type LabBooking struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	PatientName string    `json:"patientName"`
	Test        string    `json:"test"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduledAt"`
	ReportID    string    `json:"reportId,omitempty"`
}

type LabReport struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"bookingId"`
	PatientName string    `json:"patientName"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	URL         string    `json:"url,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// LabReportUpload is a report file attached to a lab booking. Data is sent
// base64 encoded.
type LabReportUpload struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	Data        []byte `json:"data" binding:"required"`
}

type Medicine struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Manufacturer         string  `json:"manufacturer"`
	Category             string  `json:"category,omitempty"`
	Price                float64 `json:"price"`
	Stock                int     `json:"stock"`
	PrescriptionRequired bool    `json:"prescriptionRequired"`
}

type MedicineInput struct {
	Name                 string  `json:"name" binding:"required"`
	Manufacturer         string  `json:"manufacturer"`
	Category             string  `json:"category,omitempty"`
	Price                float64 `json:"price" binding:"gte=0"`
	Stock                int     `json:"stock" binding:"gte=0"`
	PrescriptionRequired bool    `json:"prescriptionRequired"`
}

type OrderItem struct {
	MedicineID string  `json:"medicineId"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Order statuses accepted by UpdateOrderStatus.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

type ArticleInput struct {
	Title  string   `json:"title" binding:"required"`
	Body   string   `json:"body" binding:"required"`
	Author string   `json:"author"`
	Tags   []string `json:"tags,omitempty"`
}

// Compensation is a doctor's earnings summary.
type Compensation struct {
	DoctorID      string     `json:"doctorId"`
	DoctorName    string     `json:"doctorName"`
	Consultations int        `json:"consultations"`
	Earned        float64    `json:"earned"`
	Paid          float64    `json:"paid"`
	Balance       float64    `json:"balance"`
	LastPaidAt    *time.Time `json:"lastPaidAt,omitempty"`
}

type Payout struct {
	DoctorID  string  `json:"doctorId" binding:"required"`
	Amount    float64 `json:"amount" binding:"gt=0"`
	Reference string  `json:"reference,omitempty"`
}

type Review struct {
	ID          string    `json:"id"`
	DoctorID    string    `json:"doctorId"`
	PatientName string    `json:"patientName"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReviewInput is a patient review form submission.
type ReviewInput struct {
	DoctorID    string `json:"doctorId" binding:"required"`
	PatientName string `json:"patientName" binding:"required"`
	Rating      int    `json:"rating" binding:"min=1,max=5"`
	Comment     string `json:"comment,omitempty"`
}
