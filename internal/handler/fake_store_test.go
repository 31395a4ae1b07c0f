package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "secret123"
	testToken    = "tok-alice"
)

// fakeProduct は偽ストアの商品。
type fakeProduct struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Price       int    `json:"price"`
	Description string `json:"description"`
}

// fakeStore は外部EコマースAPIを模倣するテスト用サーバー。
// カートとウィッシュリストはトークン1つ分だけ保持する。
type fakeStore struct {
	t *testing.T

	mu       sync.Mutex
	products map[string]fakeProduct
	cart     map[string]int
	wishlist map[string]bool
}

func newFakeStore(t *testing.T) (*fakeStore, *httptest.Server) {
	t.Helper()
	fs := &fakeStore{
		t: t,
		products: map[string]fakeProduct{
			"p1": {ID: "p1", Title: "Phone", Price: 100, Description: "<p>fast</p><script>alert(1)</script>"},
			"p2": {ID: "p2", Title: "Laptop", Price: 500},
		},
		cart:     map[string]int{},
		wishlist: map[string]bool{"p2": true},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signin", fs.signIn)
	mux.HandleFunc("GET /auth/verifyToken", fs.authorized(fs.verify))
	mux.HandleFunc("GET /products", fs.listProducts)
	mux.HandleFunc("GET /products/{id}", fs.getProduct)
	mux.HandleFunc("GET /cart", fs.authorized(fs.getCart))
	mux.HandleFunc("POST /cart", fs.authorized(fs.addToCart))
	mux.HandleFunc("GET /wishlist", fs.authorized(fs.getWishlist))
	mux.HandleFunc("GET /addresses", fs.authorized(fs.addresses))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeStore) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fs.t.Errorf("偽ストアのレスポンス書き込みに失敗しました: %v", err)
	}
}

func (fs *fakeStore) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") != testToken {
			fs.write(w, http.StatusUnauthorized, map[string]string{"message": "Invalid Token. please login again"})
			return
		}
		next(w, r)
	}
}

func (fs *fakeStore) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if req.Email != testEmail || req.Password != testPassword {
		fs.write(w, http.StatusUnauthorized, map[string]string{"message": "Incorrect email or password"})
		return
	}
	fs.write(w, http.StatusOK, map[string]any{
		"message": "success",
		"user":    map[string]string{"name": "Alice", "email": testEmail, "role": "user"},
		"token":   testToken,
	})
}

func (fs *fakeStore) verify(w http.ResponseWriter, _ *http.Request) {
	fs.write(w, http.StatusOK, map[string]any{
		"message": "verified",
		"decoded": map[string]string{"id": "u1", "name": "Alice", "role": "user"},
	})
}

func (fs *fakeStore) listProducts(w http.ResponseWriter, _ *http.Request) {
	fs.mu.Lock()
	ids := make([]string, 0, len(fs.products))
	for id := range fs.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data := make([]fakeProduct, 0, len(ids))
	for _, id := range ids {
		data = append(data, fs.products[id])
	}
	fs.mu.Unlock()
	fs.write(w, http.StatusOK, map[string]any{"results": len(data), "data": data})
}

func (fs *fakeStore) getProduct(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	p, ok := fs.products[r.PathValue("id")]
	fs.mu.Unlock()
	if !ok {
		fs.write(w, http.StatusNotFound, map[string]string{"message": "No product for this id"})
		return
	}
	fs.write(w, http.StatusOK, map[string]any{"data": p})
}

// cartBody はカートのレスポンスを組み立てる。expandがfalseの場合は商品をIDのみで返す。
func (fs *fakeStore) cartBody(message string, expand bool) map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ids := make([]string, 0, len(fs.cart))
	for id := range fs.cart {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]map[string]any, 0, len(ids))
	total := 0
	for _, id := range ids {
		p := fs.products[id]
		count := fs.cart[id]
		var product any = id
		if expand {
			product = p
		}
		lines = append(lines, map[string]any{"_id": "line-" + id, "count": count, "price": p.Price, "product": product})
		total += p.Price * count
	}
	return map[string]any{
		"status":         "success",
		"message":        message,
		"numOfCartItems": len(lines),
		"cartId":         "cart-1",
		"data":           map[string]any{"_id": "cart-1", "products": lines, "totalCartPrice": total},
	}
}

func (fs *fakeStore) getCart(w http.ResponseWriter, _ *http.Request) {
	fs.write(w, http.StatusOK, fs.cartBody("", true))
}

func (fs *fakeStore) addToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	fs.mu.Lock()
	_, ok := fs.products[req.ProductID]
	if ok {
		fs.cart[req.ProductID]++
	}
	fs.mu.Unlock()
	if !ok {
		fs.write(w, http.StatusNotFound, map[string]string{"message": "No product for this id"})
		return
	}
	fs.write(w, http.StatusOK, fs.cartBody("Product added successfully to your cart", false))
}

func (fs *fakeStore) getWishlist(w http.ResponseWriter, _ *http.Request) {
	fs.mu.Lock()
	data := make([]fakeProduct, 0, len(fs.wishlist))
	for id := range fs.wishlist {
		data = append(data, fs.products[id])
	}
	fs.mu.Unlock()
	fs.write(w, http.StatusOK, map[string]any{"status": "success", "count": len(data), "data": data})
}

func (fs *fakeStore) addresses(w http.ResponseWriter, _ *http.Request) {
	fs.write(w, http.StatusOK, map[string]any{
		"status": "success",
		"data": []map[string]string{
			{"_id": "a1", "name": "Home", "details": "1-2-3 Shibuya", "phone": "01010700999", "city": "Tokyo"},
		},
	})
}

func (fs *fakeStore) cartCount(productID string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.cart[productID]
}
