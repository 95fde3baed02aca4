package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lagerverwaltung/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOrderCreateReservesStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewOrderService(db, zap.NewNop())
	publisher := &recordingPublisher{}
	svc.SetPublisher(publisher)
	ctx := context.Background()

	a := seedArticle(t, db, "ST-1", 10, 0)
	b := seedArticle(t, db, "ST-2", 5, 0)

	order, err := svc.Create(ctx, OrderInput{
		CustomerName: "Erika Muster",
		Street:       "Hauptstr. 1",
		CityZip:      "55288 Armsheim",
		Status:       models.OrderStatusPaid,
		Lines: []OrderLine{
			{ArticleID: a.ID, Quantity: 3},
			{ArticleID: b.ID, Quantity: 2, UnitPrice: floatPtr(4.5)},
			{ArticleID: b.ID, Quantity: 0},
		},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, models.DefaultArticlePrice, order.Items[0].UnitPrice)
	assert.Equal(t, 4.5, order.Items[1].UnitPrice)
	assert.Equal(t, 40.47, order.TotalPrice())
	require.NotNil(t, order.CustomerAddress)
	assert.Equal(t, "Hauptstr. 1\n55288 Armsheim", *order.CustomerAddress)

	assert.Equal(t, 7, reloadArticle(t, db, a.ID).Stock)
	assert.Equal(t, 3, reloadArticle(t, db, b.ID).Stock)

	var movements []models.Movement
	require.NoError(t, db.Where("order_id = ?", order.ID).Order("id").Find(&movements).Error)
	require.Len(t, movements, 2)
	assert.Equal(t, -3, movements[0].Quantity)
	assert.Equal(t, models.MovementOutbound, movements[0].Type)
	assert.Equal(t, fmt.Sprintf("Bestellung #%d", order.ID), movements[0].Note)

	assert.Equal(t, []string{EventOrderCreated}, publisher.Events())
}

func TestOrderCreateRollsBackOnInsufficientStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewOrderService(db, zap.NewNop())
	ctx := context.Background()

	a := seedArticle(t, db, "ST-1", 10, 0)
	b := seedArticle(t, db, "ST-2", 1, 0)

	_, err := svc.Create(ctx, OrderInput{
		CustomerName: "Max",
		Status:       models.OrderStatusOpen,
		Lines: []OrderLine{
			{ArticleID: a.ID, Quantity: 3},
			{ArticleID: b.ID, Quantity: 2},
		},
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Artikel ST-2", stockErr.ArticleName)

	var orders, items int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&items).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.Equal(t, 10, reloadArticle(t, db, a.ID).Stock)
}

func TestOrderCreateShippedDoesNotReserve(t *testing.T) {
	db := newTestDB(t)
	svc := NewOrderService(db, zap.NewNop())
	ctx := context.Background()
	a := seedArticle(t, db, "ST-1", 1, 0)

	order, err := svc.Create(ctx, OrderInput{
		CustomerName: "Max",
		Status:       models.OrderStatusShipped,
		Lines:        []OrderLine{{ArticleID: a.ID, Quantity: 5}},
	})
	require.NoError(t, err)
	assert.Nil(t, order.CustomerAddress)
	assert.Equal(t, 1, reloadArticle(t, db, a.ID).Stock)

	_, err = svc.Create(ctx, OrderInput{CustomerName: "Max", Status: "storniert"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.Create(ctx, OrderInput{CustomerName: " ", Status: models.OrderStatusOpen})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrderUpdateKeepsStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewOrderService(db, zap.NewNop())
	ctx := context.Background()
	a := seedArticle(t, db, "ST-1", 5, 0)

	order, err := svc.Create(ctx, OrderInput{
		CustomerName: "Max",
		Status:       models.OrderStatusOpen,
		Lines:        []OrderLine{{ArticleID: a.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, order.ID, OrderInput{
		CustomerName: "Moritz",
		Street:       "Weg 2",
		Status:       models.OrderStatusShipped,
	})
	require.NoError(t, err)
	assert.Equal(t, "Moritz", updated.CustomerName)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)

	loaded, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	street, cityZip := SplitAddress(loaded.CustomerAddress)
	assert.Equal(t, "Weg 2", street)
	assert.Equal(t, "", cityZip)
	require.Len(t, loaded.Items, 1)
	require.NotNil(t, loaded.Items[0].Article)
	assert.Equal(t, "ST-1", loaded.Items[0].Article.SKU)
	assert.Equal(t, 3, reloadArticle(t, db, a.ID).Stock)

	_, err = svc.Update(ctx, 999, OrderInput{CustomerName: "X", Status: models.OrderStatusOpen})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderDeleteRestoresStock(t *testing.T) {
	db := newTestDB(t)
	svc := NewOrderService(db, zap.NewNop())
	ctx := context.Background()
	a := seedArticle(t, db, "ST-1", 5, 0)

	order, err := svc.Create(ctx, OrderInput{
		CustomerName: "Max",
		Status:       models.OrderStatusOpen,
		Lines:        []OrderLine{{ArticleID: a.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, order.ID))

	assert.Equal(t, 5, reloadArticle(t, db, a.ID).Stock)

	var storno models.Movement
	require.NoError(t, db.Where("note = ?", fmt.Sprintf("Storno Bestellung #%d", order.ID)).First(&storno).Error)
	assert.Equal(t, 2, storno.Quantity)

	var attached int64
	require.NoError(t, db.Model(&models.Movement{}).Where("order_id IS NOT NULL").Count(&attached).Error)
	assert.Zero(t, attached)

	mismatches, err := NewStockService(db, zap.NewNop()).Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	assert.ErrorIs(t, svc.Delete(ctx, order.ID), ErrNotFound)
}

func TestOrderListFilters(t *testing.T) {
	db := newTestDB(t)
	svc := NewOrderService(db, zap.NewNop())
	ctx := context.Background()

	for _, in := range []OrderInput{
		{CustomerName: "Anna Alt", Status: models.OrderStatusOpen},
		{CustomerName: "Bernd Bau", Status: models.OrderStatusPaid},
		{CustomerName: "Anna Neu", Status: models.OrderStatusPaid},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	orders, err := svc.List(ctx, OrderFilter{Status: models.OrderStatusPaid})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	orders, err = svc.List(ctx, OrderFilter{Customer: "Anna"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "Anna Neu", orders[0].CustomerName)

	today := time.Now().UTC().Format("2006-01-02")
	orders, err = svc.List(ctx, OrderFilter{Start: today, End: today})
	require.NoError(t, err)
	assert.Len(t, orders, 3)

	orders, err = svc.List(ctx, OrderFilter{End: "2000-01-01", Start: "kaputt"})
	require.NoError(t, err)
	assert.Empty(t, orders)

	counts, err := svc.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.OrderStatusOpen])
	assert.Equal(t, int64(2), counts[models.OrderStatusPaid])
	assert.Equal(t, int64(0), counts[models.OrderStatusShipped])
}

func TestAddressHelpers(t *testing.T) {
	assert.Nil(t, JoinAddress(" ", ""))
	addr := JoinAddress("Weg 1", "12345 Ort")
	require.NotNil(t, addr)
	street, cityZip := SplitAddress(addr)
	assert.Equal(t, "Weg 1", street)
	assert.Equal(t, "12345 Ort", cityZip)

	street, cityZip = SplitAddress(nil)
	assert.Empty(t, street)
	assert.Empty(t, cityZip)
}
