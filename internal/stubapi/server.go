// Package stubapi is an in-memory stand-in for the remote cart service,
// used for storefront development and in tests. It implements the same
// HTTP/JSON contract the real backend exposes, including its line-merging
// policy: adding an already-present product+size combines into one line.
package stubapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/domain"
)

var sizes = []string{"30ml", "50ml", "100ml"}

// Product is a catalog entry served by the stub
type Product struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Brand     string   `json:"brand"`
	ImageURL  string   `json:"image_url"`
	UnitPrice float64  `json:"unit_price"`
	Sizes     []string `json:"sizes"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

// Server holds the stub's catalog and per-credential carts
type Server struct {
	logger *zap.Logger

	mu       sync.Mutex
	catalog  []Product
	products map[string]Product
	carts    map[string]*domain.Cart
}

// NewServer creates a stub server with a seeded fragrance catalog
func NewServer(logger *zap.Logger) *Server {
	s := &Server{
		logger:   logger,
		products: make(map[string]Product),
		carts:    make(map[string]*domain.Cart),
	}

	faker := gofakeit.New(0)
	for i := 0; i < 24; i++ {
		id := uuid.NewString()
		p := Product{
			ID:        id,
			Name:      faker.ProductName(),
			Brand:     faker.Company(),
			ImageURL:  fmt.Sprintf("https://img.aromelle.test/%s.jpg", id),
			UnitPrice: faker.Price(39, 320),
			Sizes:     sizes,
		}
		s.catalog = append(s.catalog, p)
		s.products[id] = p
	}

	return s
}

// Products returns the seeded catalog
func (s *Server) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// Handler returns the stub's HTTP handler
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/sessions/anonymous", s.handleCreateSession)
	router.GET("/catalog", s.handleGetCatalog)
	router.GET("/cart", s.handleGetCart)
	router.POST("/cart/items", s.handleAddItem)
	router.PATCH("/cart/items/:id", s.handleUpdateItem)
	router.DELETE("/cart/items/:id", s.handleRemoveItem)

	return router
}

func (s *Server) handleCreateSession(c *gin.Context) {
	credential := uuid.NewString()

	s.mu.Lock()
	s.carts[credential] = &domain.Cart{}
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"credential": credential})
}

func (s *Server) handleGetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": s.Products()})
}

func (s *Server) handleGetCart(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.authedCart(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cart.Clone())
}

func (s *Server) handleAddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.authedCart(c)
	if !ok {
		return
	}

	if req.Quantity < 1 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "quantity must be at least 1"})
		return
	}
	product, ok := s.products[req.ProductID]
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown product"})
		return
	}
	if req.Size != "" && !validSize(req.Size) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown size"})
		return
	}

	// Merge policy: same product and size folds into the existing line
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == req.ProductID && cart.Items[i].Product.Size == req.Size {
			cart.Items[i].Quantity += req.Quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        uuid.NewString(),
			ProductID: product.ID,
			Quantity:  req.Quantity,
			UnitPrice: product.UnitPrice,
			Product: domain.ProductSnapshot{
				Name:     product.Name,
				Brand:    product.Brand,
				ImageURL: product.ImageURL,
				Size:     req.Size,
			},
		})
	}

	c.JSON(http.StatusOK, cart.Clone())
}

func (s *Server) handleUpdateItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.authedCart(c)
	if !ok {
		return
	}

	if *req.Quantity < 1 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "quantity must be at least 1"})
		return
	}

	itemID := c.Param("id")
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items[i].Quantity = *req.Quantity
			c.JSON(http.StatusOK, cart.Clone())
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
}

func (s *Server) handleRemoveItem(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.authedCart(c)
	if !ok {
		return
	}

	itemID := c.Param("id")
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			c.JSON(http.StatusOK, cart.Clone())
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
}

// authedCart resolves the bearer credential to its cart. Caller holds s.mu.
func (s *Server) authedCart(c *gin.Context) (*domain.Cart, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return nil, false
	}

	cart, ok := s.carts[strings.TrimSpace(parts[1])]
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		return nil, false
	}
	return cart, true
}

func validSize(size string) bool {
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}
