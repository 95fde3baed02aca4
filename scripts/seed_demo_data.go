package main

import (
	"context"
	"errors"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"lagerverwaltung/server/internal/config"
	"lagerverwaltung/server/internal/database"
	"lagerverwaltung/server/internal/models"
	"lagerverwaltung/server/internal/services"
)

type demoCategory struct {
	name     string
	prefix   string
	price    float64
	minStock int
}

type demoArticle struct {
	name     string
	sku      string
	stock    int
	location string
}

var demoCategories = []demoCategory{
	{"Sticker", "ST-", 2.50, 1000},
	{"Schal", "SC-", 19.90, 100},
	{"Shirt", "SH-", 24.90, 10},
}

var demoArticles = []demoArticle{
	{"Aufkleber Logo rund", "ST-LOGO", 2400, "Regal A1"},
	{"Aufkleber Schriftzug", "ST-SCHRIFT", 800, "Regal A2"},
	{"Schal Vereinsfarben", "SC-VEREIN", 140, "Regal B1"},
	{"Shirt Logo M", "SH-LOGO-M", 25, "Regal C1"},
	{"Shirt Logo L", "SH-LOGO-L", 6, "Regal C1"},
}

// Seeds categories, an ending and a few articles for local testing.
// Existing rows are left alone, so the script can run repeatedly.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found, using process environment")
	}
	cfg := config.Load()
	logger := zap.NewNop()

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer database.Close(db)
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	pricing := services.NewPricingService(db)
	articles := services.NewArticleService(db, pricing, logger)

	for _, c := range demoCategories {
		if _, err := pricing.SaveCategory(c.name, c.prefix, c.price, c.minStock); err != nil {
			log.Fatalf("category %s: %v", c.name, err)
		}
	}
	if _, err := pricing.SaveEnding("Sticker", "-10er", 20, 10); err != nil {
		log.Fatalf("ending: %v", err)
	}

	created := 0
	for _, a := range demoArticles {
		_, err := articles.Create(ctx, services.ArticleInput{
			Name:            a.name,
			SKU:             a.sku,
			Stock:           a.stock,
			LocationPrimary: a.location,
		})
		if errors.Is(err, services.ErrDuplicateSKU) {
			continue
		}
		if err != nil {
			log.Fatalf("article %s: %v", a.sku, err)
		}
		created++
	}
	log.Printf("demo data ready: %d categories, %d new articles", len(demoCategories), created)
}
