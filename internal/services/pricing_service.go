package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"lagerverwaltung/server/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// builtinMinimumStock is used when a category has no configured minimum.
var builtinMinimumStock = map[string]int{
	"sticker": 1000,
	"schal":   100,
	"shirt":   10,
}

// PricingService resolves categories, prices and minimum stock from SKU
// prefixes and suffixes.
type PricingService struct {
	db *gorm.DB
}

func NewPricingService(db *gorm.DB) *PricingService {
	return &PricingService{db: db}
}

// WithTx binds the service to a running transaction.
func (s *PricingService) WithTx(tx *gorm.DB) *PricingService {
	return &PricingService{db: tx}
}

// ResolveCategory returns the name of the category whose prefix starts the
// SKU. The longest prefix wins, ties go to the lowest id.
func (s *PricingService) ResolveCategory(sku string) (string, bool) {
	category, err := s.matchPrefix(sku)
	if err != nil || category == nil {
		return "", false
	}
	return category.Name, true
}

func (s *PricingService) matchPrefix(sku string) (*models.Category, error) {
	if sku == "" {
		return nil, nil
	}
	var categories []models.Category
	if err := s.db.Where("prefix IS NOT NULL AND prefix <> ''").Order("id").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	lowerSKU := strings.ToLower(sku)
	var best *models.Category
	for i := range categories {
		prefix := strings.ToLower(categories[i].PrefixValue())
		if !strings.HasPrefix(lowerSKU, prefix) {
			continue
		}
		if best == nil || len(prefix) > len(best.PrefixValue()) {
			best = &categories[i]
		}
	}
	return best, nil
}

// MatchEnding returns the ending category with the longest suffix of the SKU.
func (s *PricingService) MatchEnding(sku string) (*models.EndingCategory, bool) {
	if sku == "" {
		return nil, false
	}
	var endings []models.EndingCategory
	if err := s.db.Where("suffix <> ''").Order("id").Find(&endings).Error; err != nil {
		return nil, false
	}

	var (
		best      *models.EndingCategory
		bestRunes int
	)
	for i := range endings {
		n := utf8.RuneCountInString(endings[i].Suffix)
		if _, ok := trimSuffixFold(sku, endings[i].Suffix); !ok {
			continue
		}
		if best == nil || n > bestRunes {
			best = &endings[i]
			bestRunes = n
		}
	}
	return best, best != nil
}

// trimSuffixFold removes suffix from s when the trailing runes of s equal it
// under Unicode case folding.
func trimSuffixFold(s, suffix string) (string, bool) {
	n := utf8.RuneCountInString(suffix)
	if n == 0 || utf8.RuneCountInString(s) < n {
		return s, false
	}
	cut := len(s)
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:cut])
		cut -= size
	}
	if !strings.EqualFold(s[cut:], suffix) {
		return s, false
	}
	return s[:cut], true
}

// ResolvePrice applies suffix, prefix and category defaults in that order.
// Suffix prices are per CSV unit and get divided by the multiplier.
func (s *PricingService) ResolvePrice(sku, category string) float64 {
	if ending, ok := s.MatchEnding(sku); ok {
		price := decimal.NewFromFloat(ending.Price)
		if ending.Multiplier() > 1 {
			price = price.Div(decimal.NewFromInt(int64(ending.Multiplier())))
		}
		return roundPrice(price)
	}

	if prefixed, err := s.matchPrefix(sku); err == nil && prefixed != nil {
		return roundPrice(decimal.NewFromFloat(prefixed.DefaultPrice))
	}

	if category != "" {
		var named models.Category
		if err := s.db.Where("name = ?", category).First(&named).Error; err == nil {
			return roundPrice(decimal.NewFromFloat(named.DefaultPrice))
		}
	}
	return 0
}

// DefaultMinimumStock returns the configured minimum of the category or the
// built-in value for the well known categories.
func (s *PricingService) DefaultMinimumStock(category string) int {
	if category == "" {
		return 0
	}
	var named models.Category
	if err := s.db.Where("name = ?", category).First(&named).Error; err == nil && named.DefaultMinStock > 0 {
		return named.DefaultMinStock
	}
	return builtinMinimumStock[strings.ToLower(category)]
}

// BaseSKU strips a matched ending suffix and returns the ending, if any.
func (s *PricingService) BaseSKU(sku string) (string, *models.EndingCategory) {
	ending, ok := s.MatchEnding(sku)
	if !ok {
		return sku, nil
	}
	base, _ := trimSuffixFold(sku, ending.Suffix)
	return base, ending
}

// ApplyCategoryDefaults copies price and minimum stock of a category onto all
// of its articles.
func (s *PricingService) ApplyCategoryDefaults(categoryID uint) (int, error) {
	var category models.Category
	if err := s.db.First(&category, categoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("load category: %w", err)
	}

	result := s.db.Model(&models.Article{}).
		Where("category = ?", category.Name).
		Updates(map[string]interface{}{
			"price":         category.DefaultPrice,
			"minimum_stock": category.DefaultMinStock,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("apply category defaults: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// ListCategories returns all prefix categories by name.
func (s *PricingService) ListCategories() ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.Order("name").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// SaveCategory creates a category or updates the one with the same name.
func (s *PricingService) SaveCategory(name, prefix string, defaultPrice float64, defaultMinStock int) (*models.Category, error) {
	name = strings.TrimSpace(name)
	prefix = strings.TrimSpace(prefix)
	if name == "" || defaultPrice < 0 || defaultMinStock < 0 {
		return nil, ErrInvalidInput
	}

	var category models.Category
	err := s.db.Where("name = ?", name).First(&category).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load category: %w", err)
	}

	if prefix != "" {
		var clash models.Category
		if err := s.db.Where("LOWER(prefix) = ? AND name <> ?", strings.ToLower(prefix), name).First(&clash).Error; err == nil {
			return nil, ErrDuplicateCategory
		}
	}

	category.Name = name
	category.DefaultPrice = defaultPrice
	category.DefaultMinStock = defaultMinStock
	category.Prefix = nil
	if prefix != "" {
		category.Prefix = &prefix
	}
	if err := s.db.Save(&category).Error; err != nil {
		return nil, fmt.Errorf("save category: %w", err)
	}
	return &category, nil
}

// DeleteCategory removes a category; articles keep their category name.
func (s *PricingService) DeleteCategory(id uint) error {
	result := s.db.Delete(&models.Category{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete category: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEndings returns all ending categories by suffix.
func (s *PricingService) ListEndings() ([]models.EndingCategory, error) {
	var endings []models.EndingCategory
	if err := s.db.Order("suffix").Find(&endings).Error; err != nil {
		return nil, fmt.Errorf("list ending categories: %w", err)
	}
	return endings, nil
}

// SaveEnding creates or updates the ending category for suffix.
func (s *PricingService) SaveEnding(category, suffix string, price float64, multiplier int) (*models.EndingCategory, error) {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" || price < 0 {
		return nil, ErrInvalidInput
	}
	if multiplier < 1 {
		multiplier = 1
	}

	var ending models.EndingCategory
	err := s.db.Where("LOWER(suffix) = ?", strings.ToLower(suffix)).First(&ending).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load ending category: %w", err)
	}
	ending.Category = strings.TrimSpace(category)
	ending.Suffix = suffix
	ending.Price = price
	ending.CsvMultiplier = multiplier
	if err := s.db.Save(&ending).Error; err != nil {
		return nil, fmt.Errorf("save ending category: %w", err)
	}
	return &ending, nil
}

// DeleteEnding removes an ending category.
func (s *PricingService) DeleteEnding(id uint) error {
	result := s.db.Delete(&models.EndingCategory{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete ending category: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func roundPrice(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
