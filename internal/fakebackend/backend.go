// Package fakebackend is an in-memory clinic backend used by the demo
// command and by tests. It serves the same routes as the real REST API and
// can be told to fail or slow down per path.
package fakebackend

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krisalay/clinic-swr-cache/internal/adminapi"
)

// Backend holds the fake clinic data.
type Backend struct {
	mu sync.Mutex

	doctors      []adminapi.Doctor
	users        []adminapi.User
	labBookings  []adminapi.LabBooking
	labReports   []adminapi.LabReport
	medicines    []adminapi.Medicine
	orders       []adminapi.Order
	articles     []adminapi.Article
	compensation []adminapi.Compensation
	reviews      []adminapi.Review

	hits    map[string]int
	fail    map[string]int
	latency time.Duration
	nextID  int
	now     func() time.Time
}

// New returns a backend seeded with a small data set.
func New() *Backend {
	b := &Backend{
		hits: make(map[string]int),
		fail: make(map[string]int),
		now:  time.Now,
	}
	b.seed()
	return b
}

func (b *Backend) seed() {
	t := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	b.doctors = []adminapi.Doctor{
		{ID: "d1", Name: "Dr. Asha Rao", Email: "asha@clinic.test", Specialization: "cardiology", Fee: 800, Available: true, CreatedAt: t},
		{ID: "d2", Name: "Dr. Vikram Sen", Email: "vikram@clinic.test", Specialization: "dermatology", Fee: 600, Available: true, CreatedAt: t},
		{ID: "d3", Name: "Dr. Meera Iyer", Email: "meera@clinic.test", Specialization: "pediatrics", Fee: 500, CreatedAt: t},
	}
	b.users = []adminapi.User{
		{ID: "u1", Name: "Ravi Kumar", Email: "ravi@mail.test", Role: "patient", CreatedAt: t},
		{ID: "u2", Name: "Neha Shah", Email: "neha@mail.test", Role: "patient", CreatedAt: t},
	}
	b.labBookings = []adminapi.LabBooking{
		{ID: "lb1", UserID: "u1", PatientName: "Ravi Kumar", Test: "CBC", Status: "pending", ScheduledAt: t.Add(48 * time.Hour)},
	}
	b.medicines = []adminapi.Medicine{
		{ID: "m1", Name: "Paracetamol 500mg", Manufacturer: "Cipla", Price: 25, Stock: 400},
		{ID: "m2", Name: "Amoxicillin 250mg", Manufacturer: "Sun Pharma", Price: 90, Stock: 8, PrescriptionRequired: true},
	}
	b.orders = []adminapi.Order{
		{ID: "o1", UserID: "u2", Items: []adminapi.OrderItem{{MedicineID: "m1", Name: "Paracetamol 500mg", Quantity: 2, Price: 25}}, Total: 50, Status: adminapi.OrderPending, CreatedAt: t},
	}
	b.articles = []adminapi.Article{
		{ID: "a1", Title: "Staying hydrated", Body: "Drink water.", Author: "Dr. Asha Rao", PublishedAt: t},
	}
	b.compensation = []adminapi.Compensation{
		{DoctorID: "d1", DoctorName: "Dr. Asha Rao", Consultations: 10, Earned: 8000, Balance: 8000},
		{DoctorID: "d2", DoctorName: "Dr. Vikram Sen", Consultations: 4, Earned: 2400, Balance: 2400},
	}
	b.reviews = []adminapi.Review{
		{ID: "r1", DoctorID: "d1", PatientName: "Ravi Kumar", Rating: 5, Comment: "Very thorough", CreatedAt: t},
	}
	b.nextID = 100
}

// Fail makes every request to path answer with status until Recover.
func (b *Backend) Fail(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[path] = status
}

func (b *Backend) Recover(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fail, path)
}

// SetLatency delays every answer by d.
func (b *Backend) SetLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

// Hits returns how many requests reached path (any method).
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// TotalHits returns the number of requests served.
func (b *Backend) TotalHits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, h := range b.hits {
		n += h
	}
	return n
}

func (b *Backend) id(prefix string) string {
	b.nextID++
	return prefix + strconv.Itoa(b.nextID)
}

// Handler returns the HTTP routes of the backend.
func (b *Backend) Handler() http.Handler {
	r := gin.New()
	r.Use(b.middleware)

	r.GET("/admin/stats", b.getStats)
	r.GET("/admin/doctors", listHandler(b, func() []adminapi.Doctor { return b.doctors }, func(d adminapi.Doctor) string { return d.Name }, nil))
	r.POST("/admin/doctors", b.createDoctor)
	r.PUT("/admin/doctors/:id", b.updateDoctor)
	r.DELETE("/admin/doctors/:id", b.deleteDoctor)
	r.GET("/admin/users", listHandler(b, func() []adminapi.User { return b.users }, func(u adminapi.User) string { return u.Name }, nil))
	r.GET("/admin/lab-bookings", listHandler(b, func() []adminapi.LabBooking { return b.labBookings }, func(l adminapi.LabBooking) string { return l.PatientName }, func(l adminapi.LabBooking) string { return l.Status }))
	r.POST("/admin/lab-bookings/:id/report", b.uploadReport)
	r.GET("/admin/lab-reports", listHandler(b, func() []adminapi.LabReport { return b.labReports }, func(l adminapi.LabReport) string { return l.PatientName }, nil))
	r.GET("/admin/medicines", listHandler(b, func() []adminapi.Medicine { return b.medicines }, func(m adminapi.Medicine) string { return m.Name }, nil))
	r.POST("/admin/medicines", b.createMedicine)
	r.PUT("/admin/medicines/:id", b.updateMedicine)
	r.GET("/admin/orders", listHandler(b, func() []adminapi.Order { return b.orders }, nil, func(o adminapi.Order) string { return o.Status }))
	r.PATCH("/admin/orders/:id/status", b.updateOrderStatus)
	r.GET("/articles", listHandler(b, func() []adminapi.Article { return b.articles }, func(a adminapi.Article) string { return a.Title }, nil))
	r.POST("/admin/articles", b.createArticle)
	r.GET("/admin/compensation", listHandler(b, func() []adminapi.Compensation { return b.compensation }, func(c adminapi.Compensation) string { return c.DoctorName }, nil))
	r.POST("/admin/compensation/payouts", b.payCompensation)
	r.GET("/reviews", listHandler(b, func() []adminapi.Review { return b.reviews }, func(r adminapi.Review) string { return r.PatientName }, nil))
	r.POST("/reviews", b.submitReview)
	return r
}

func (b *Backend) middleware(c *gin.Context) {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}

	b.mu.Lock()
	b.hits[path]++
	status, failing := b.fail[path]
	latency := b.latency
	b.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	if failing {
		c.AbortWithStatusJSON(status, gin.H{"message": fmt.Sprintf("%s is failing", path)})
		return
	}
	c.Next()
}

func listHandler[T any](b *Backend, items func() []T, name func(T) string, status func(T) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		search := strings.ToLower(c.Query("search"))
		wantStatus := c.Query("status")
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 20
		}

		b.mu.Lock()
		var matched []T
		for _, it := range items() {
			if search != "" && name != nil && !strings.Contains(strings.ToLower(name(it)), search) {
				continue
			}
			if wantStatus != "" && status != nil && status(it) != wantStatus {
				continue
			}
			matched = append(matched, it)
		}
		b.mu.Unlock()

		start := min((page-1)*limit, len(matched))
		end := min(start+limit, len(matched))
		c.JSON(http.StatusOK, adminapi.Page[T]{
			Items: append([]T{}, matched[start:end]...),
			Total: len(matched),
			Page:  page,
			Limit: limit,
		})
	}
}

func (b *Backend) getStats(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := adminapi.Stats{
		Doctors:     len(b.doctors),
		Users:       len(b.users),
		Orders:      len(b.orders),
		LabBookings: len(b.labBookings),
		Medicines:   len(b.medicines),
	}
	for _, o := range b.orders {
		if o.Status == adminapi.OrderPending {
			s.PendingOrders++
		}
		if o.Status != adminapi.OrderCancelled {
			s.Revenue += o.Total
		}
	}
	for _, l := range b.labBookings {
		if l.Status == "pending" {
			s.PendingLabBookings++
		}
	}
	for _, m := range b.medicines {
		if m.Stock < 10 {
			s.LowStockMedicines++
		}
	}
	c.JSON(http.StatusOK, s)
}

func (b *Backend) createDoctor(c *gin.Context) {
	var in adminapi.DoctorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	d := adminapi.Doctor{
		ID: b.id("d"), Name: in.Name, Email: in.Email, Phone: in.Phone,
		Specialization: in.Specialization, Fee: in.Fee, Available: in.Available, CreatedAt: b.now(),
	}
	b.doctors = append(b.doctors, d)
	b.mu.Unlock()
	c.JSON(http.StatusCreated, d)
}

func (b *Backend) updateDoctor(c *gin.Context) {
	var in adminapi.DoctorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.doctors {
		if d.ID == c.Param("id") {
			d.Name, d.Email, d.Phone = in.Name, in.Email, in.Phone
			d.Specialization, d.Fee, d.Available = in.Specialization, in.Fee, in.Available
			b.doctors[i] = d
			c.JSON(http.StatusOK, d)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "doctor not found"})
}

func (b *Backend) deleteDoctor(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.doctors {
		if d.ID == c.Param("id") {
			b.doctors = append(b.doctors[:i], b.doctors[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "doctor not found"})
}

func (b *Backend) createMedicine(c *gin.Context) {
	var in adminapi.MedicineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	m := adminapi.Medicine{
		ID: b.id("m"), Name: in.Name, Manufacturer: in.Manufacturer, Category: in.Category,
		Price: in.Price, Stock: in.Stock, PrescriptionRequired: in.PrescriptionRequired,
	}
	b.medicines = append(b.medicines, m)
	b.mu.Unlock()
	c.JSON(http.StatusCreated, m)
}

func (b *Backend) updateMedicine(c *gin.Context) {
	var in adminapi.MedicineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.medicines {
		if m.ID == c.Param("id") {
			m.Name, m.Manufacturer, m.Category = in.Name, in.Manufacturer, in.Category
			m.Price, m.Stock, m.PrescriptionRequired = in.Price, in.Stock, in.PrescriptionRequired
			b.medicines[i] = m
			c.JSON(http.StatusOK, m)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "medicine not found"})
}

func (b *Backend) updateOrderStatus(c *gin.Context) {
	var in struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.orders {
		if o.ID == c.Param("id") {
			o.Status = in.Status
			b.orders[i] = o
			c.JSON(http.StatusOK, o)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "order not found"})
}

func (b *Backend) uploadReport(c *gin.Context) {
	var in adminapi.LabReportUpload
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.labBookings {
		if l.ID == c.Param("id") {
			r := adminapi.LabReport{
				ID: b.id("lr"), BookingID: l.ID, PatientName: l.PatientName,
				FileName: in.FileName, ContentType: in.ContentType, UploadedAt: b.now(),
			}
			b.labReports = append(b.labReports, r)
			l.Status, l.ReportID = "completed", r.ID
			b.labBookings[i] = l
			c.JSON(http.StatusCreated, r)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "lab booking not found"})
}

func (b *Backend) createArticle(c *gin.Context) {
	var in adminapi.ArticleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	a := adminapi.Article{ID: b.id("a"), Title: in.Title, Body: in.Body, Author: in.Author, Tags: in.Tags, PublishedAt: b.now()}
	b.articles = append(b.articles, a)
	b.mu.Unlock()
	c.JSON(http.StatusCreated, a)
}

func (b *Backend) payCompensation(c *gin.Context) {
	var in adminapi.Payout
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, comp := range b.compensation {
		if comp.DoctorID == in.DoctorID {
			if in.Amount > comp.Balance {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "amount exceeds balance"})
				return
			}
			now := b.now()
			comp.Paid += in.Amount
			comp.Balance -= in.Amount
			comp.LastPaidAt = &now
			b.compensation[i] = comp
			c.JSON(http.StatusOK, comp)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "doctor not found"})
}

func (b *Backend) submitReview(c *gin.Context) {
	var in adminapi.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	r := adminapi.Review{ID: b.id("r"), DoctorID: in.DoctorID, PatientName: in.PatientName, Rating: in.Rating, Comment: in.Comment, CreatedAt: b.now()}
	b.reviews = append(b.reviews, r)
	b.mu.Unlock()
	c.JSON(http.StatusCreated, r)
}
