package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shoplite/commerce-api/internal/cart"
	"github.com/shoplite/commerce-api/internal/httpx"
	"github.com/shoplite/commerce-api/internal/order"
	"github.com/shoplite/commerce-api/internal/payment"
)

// startCheckoutHandler opens a payment session for the caller's cart.
// @Summary      Start checkout
// @Tags         payment
// @Produce      json
// @Success      201 {object} payment.CheckoutSession
// @Failure      400 {object} map[string]string
// @Failure      500 {object} map[string]string
// @Security     BearerAuth
// @Router       /payment [post]
func startCheckoutHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := svc.StartCheckout(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, cart.ErrEmptyCart):
				c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
			case errors.Is(err, payment.ErrGateway):
				c.JSON(http.StatusInternalServerError, gin.H{"error": "payment gateway unavailable"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusCreated, sess)
	}
}

// verifyPaymentHandler is the gateway confirmation callback. Unauthenticated:
// the caller is the provider (or a refreshed browser tab).
// @Summary      Verify payment callback
// @Tags         payment
// @Produce      json
// @Param        paymentId query string false "gateway payment id"
// @Param        orderRef  query string false "gateway order reference"
// @Param        status    query string false "gateway payment status"
// @Success      200 {object} payment.ConfirmResult
// @Failure      404 {object} map[string]string
// @Router       /payment/verify [get]
func verifyPaymentHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Confirm(
			c.Request.Context(),
			c.Query("paymentId"),
			c.Query("orderRef"),
			c.Query("status"),
		)
		if err != nil {
			if errors.Is(err, payment.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "payment record not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      List caller's payments
// @Tags         payment
// @Produce      json
// @Security     BearerAuth
// @Router       /payment [get]
func listPaymentsHandler(repo payment.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := repo.ListByUser(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"payments": payments})
	}
}

// @Summary      Delete all caller's payments
// @Tags         payment
// @Produce      json
// @Security     BearerAuth
// @Router       /payment [delete]
func deletePaymentsHandler(repo payment.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := repo.DeleteByUser(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": n})
	}
}

// @Summary      List caller's orders, most recent first
// @Tags         order
// @Produce      json
// @Security     BearerAuth
// @Router       /order [get]
func listOrdersHandler(repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := repo.ListByUser(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}

// @Summary      Cancel an owned order
// @Tags         order
// @Produce      json
// @Param        id path string true "order id"
// @Success      200 {object} map[string]any
// @Failure      404 {object} map[string]string
// @Security     BearerAuth
// @Router       /order/cancel/{id} [put]
func cancelOrderHandler(repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := repo.Cancel(c.Request.Context(), httpx.UserID(c), c.Param("id"))
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "order cancelled", "order": o})
	}
}

// deleteOrderHandler deletes one owned order when :id is present, or all of
// the caller's orders when it is not.
// @Summary      Delete one or all owned orders
// @Tags         order
// @Produce      json
// @Param        id path string false "order id"
// @Security     BearerAuth
// @Router       /order/{id} [delete]
func deleteOrderHandler(repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := httpx.UserID(c)
		id := c.Param("id")
		if id == "" {
			n, err := repo.DeleteByUser(c.Request.Context(), userID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"deleted": n})
			return
		}
		if err := repo.DeleteOne(c.Request.Context(), userID, id); err != nil {
			if errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
	}
}

// addCartItemHandler stores a cart line. The request price is per unit; the
// stored price is the line total.
// @Summary      Add item to cart
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        item body cart.AddItemRequest true "item"
// @Success      201 {object} map[string]any
// @Failure      400 {object} map[string]string
// @Security     BearerAuth
// @Router       /cart [post]
func addCartItemHandler(repo cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cart.AddItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if req.Title == "" || req.Quantity < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title and quantity >= 1 are required"})
			return
		}
		unit, err := decimal.NewFromString(req.Price)
		if err != nil || unit.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
			return
		}
		it := &cart.Item{
			ID:       uuid.NewString(),
			UserID:   httpx.UserID(c),
			Title:    req.Title,
			Price:    unit.Mul(decimal.NewFromInt(int64(req.Quantity))).StringFixed(2),
			Quantity: req.Quantity,
			Image:    req.Image,
		}
		if err := repo.Create(c.Request.Context(), it); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "item added to cart", "item": it})
	}
}

// @Summary      List caller's cart
// @Tags         cart
// @Produce      json
// @Security     BearerAuth
// @Router       /cart [get]
func listCartHandler(repo cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := repo.ListByUser(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// @Summary      Remove an owned cart item
// @Tags         cart
// @Produce      json
// @Param        id path string true "cart item id"
// @Failure      404 {object} map[string]string
// @Security     BearerAuth
// @Router       /cart/{id} [delete]
func removeCartItemHandler(repo cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		it, err := repo.GetOwned(c.Request.Context(), c.Param("id"), httpx.UserID(c))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
			return
		}
		if _, err := repo.Delete(c.Request.Context(), it.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "cart item removed"})
	}
}

// updateCartQuantityHandler changes a line's quantity and renormalizes its
// line total from the stored per-unit price.
// @Summary      Update cart item quantity
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        id   path string true "cart item id"
// @Param        body body cart.UpdateQuantityRequest true "quantity"
// @Failure      404 {object} map[string]string
// @Security     BearerAuth
// @Router       /cart/{id} [put]
func updateCartQuantityHandler(repo cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cart.UpdateQuantityRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Quantity < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity >= 1 is required"})
			return
		}
		it, err := repo.GetOwned(c.Request.Context(), c.Param("id"), httpx.UserID(c))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
			return
		}
		total, err := decimal.NewFromString(it.Price)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		unit := total.Div(decimal.NewFromInt(int64(it.Quantity)))
		newPrice := unit.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2)
		if err := repo.UpdateQuantity(c.Request.Context(), it.ID, req.Quantity, newPrice.StringFixed(2)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		it.Quantity = req.Quantity
		it.Price = newPrice.StringFixed(2)
		c.JSON(http.StatusOK, gin.H{"message": "cart updated", "item": it})
	}
}
