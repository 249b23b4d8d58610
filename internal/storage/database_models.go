/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package storage

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/storeforge/storefront/internal/types"
)

// Store model
type Store struct {
	ID                   string    `gorm:"type:uuid;primarykey" json:"id"`
	Name                 string    `gorm:"size:255;not null" json:"name"`
	Handle               string    `gorm:"size:255;index" json:"handle"`
	Domain               string    `gorm:"size:255;uniqueIndex;not null" json:"domain"`
	CustomDomain         *string   `gorm:"size:255;uniqueIndex" json:"custom_domain,omitempty"`
	CustomDomainStatus   string    `gorm:"size:20;not null;default:'pending'" json:"custom_domain_status"`
	CustomDomainVerified bool      `gorm:"not null;default:false" json:"custom_domain_verified"`
	IsActive             bool      `gorm:"not null;default:true" json:"is_active"`
	Description          string    `gorm:"type:text" json:"description,omitempty"`
	Email                string    `gorm:"size:255" json:"email,omitempty"`
	Phone                string    `gorm:"size:50" json:"phone,omitempty"`
	Currency             string    `gorm:"size:3;not null;default:'USD'" json:"currency"`
	LogoURL              string    `gorm:"type:text" json:"logo_url,omitempty"`
	ThemeID              string    `gorm:"size:255" json:"theme_id,omitempty"`
	CreatedAt            time.Time `gorm:"type:timestamptz;not null;default:now()" json:"created_at"`
	UpdatedAt            time.Time `gorm:"type:timestamptz;not null;default:now()" json:"updated_at"`
}

// Product model
type Product struct {
	ID             string         `gorm:"type:uuid;primarykey" json:"id"`
	StoreID        string         `gorm:"type:uuid;index:idx_products_store_handle,unique;not null" json:"store_id"`
	Handle         string         `gorm:"size:255;index:idx_products_store_handle,unique;not null" json:"handle"`
	Title          string         `gorm:"size:255;not null" json:"title"`
	Description    string         `gorm:"type:text" json:"description,omitempty"`
	Price          float64        `gorm:"not null;default:0" json:"price"`
	CompareAtPrice float64        `gorm:"not null;default:0" json:"compare_at_price"`
	Vendor         string         `gorm:"size:255" json:"vendor,omitempty"`
	Available      bool           `gorm:"not null;default:true" json:"available"`
	Images         datatypes.JSON `gorm:"type:jsonb" json:"images,omitempty"`
	Tags           datatypes.JSON `gorm:"type:jsonb" json:"tags,omitempty"`
	CollectionIDs  datatypes.JSON `gorm:"type:jsonb" json:"collection_ids,omitempty"`
}

// Collection model
type Collection struct {
	ID          string         `gorm:"type:uuid;primarykey" json:"id"`
	StoreID     string         `gorm:"type:uuid;index:idx_collections_store_handle,unique;not null" json:"store_id"`
	Handle      string         `gorm:"size:255;index:idx_collections_store_handle,unique;not null" json:"handle"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	ImageURL    string         `gorm:"type:text" json:"image_url,omitempty"`
	ProductIDs  datatypes.JSON `gorm:"type:jsonb" json:"product_ids,omitempty"`
}

// Cart model
type Cart struct {
	ID        string         `gorm:"type:uuid;primarykey" json:"id"`
	StoreID   string         `gorm:"type:uuid;index;not null" json:"store_id"`
	Items     datatypes.JSON `gorm:"type:jsonb;not null" json:"items"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;not null;default:now()" json:"updated_at"`
}

// ThemeConfig model holds a store's persisted section settings
type ThemeConfig struct {
	ID        uint           `gorm:"primarykey" json:"-"`
	StoreID   string         `gorm:"type:uuid;index:idx_theme_configs_store_theme,unique;not null" json:"store_id"`
	ThemeID   string         `gorm:"size:255;index:idx_theme_configs_store_theme,unique;not null" json:"theme_id"`
	Templates datatypes.JSON `gorm:"type:jsonb;not null" json:"templates"`
	Settings  datatypes.JSON `gorm:"type:jsonb" json:"settings,omitempty"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;not null;default:now()" json:"updated_at"`
}

// TableName specify table name
func (Store) TableName() string {
	return "stores"
}

func (Product) TableName() string {
	return "products"
}

func (Collection) TableName() string {
	return "collections"
}

func (Cart) TableName() string {
	return "carts"
}

func (ThemeConfig) TableName() string {
	return "theme_configs"
}

// BeforeSave hook keeps timestamps populated
func (s *Store) BeforeSave(tx *gorm.DB) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return nil
}

// toJSON encodes v for a jsonb column, storing nil for empty values
func toJSON(v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return datatypes.JSON(data), nil
}

// fromJSON decodes a jsonb column into dest, leaving dest untouched when empty
func fromJSON(data datatypes.JSON, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func storeFromModel(m *Store) *types.Store {
	store := &types.Store{
		ID:                   m.ID,
		Name:                 m.Name,
		Handle:               m.Handle,
		Domain:               m.Domain,
		CustomDomainStatus:   types.CustomDomainStatus(m.CustomDomainStatus),
		CustomDomainVerified: m.CustomDomainVerified,
		IsActive:             m.IsActive,
		Description:          m.Description,
		Email:                m.Email,
		Phone:                m.Phone,
		Currency:             m.Currency,
		LogoURL:              m.LogoURL,
		ThemeID:              m.ThemeID,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	if m.CustomDomain != nil {
		store.CustomDomain = *m.CustomDomain
	}
	return store
}

func storeToModel(s *types.Store) *Store {
	m := &Store{
		ID:                   s.ID,
		Name:                 s.Name,
		Handle:               s.Handle,
		Domain:               s.Domain,
		CustomDomainStatus:   string(s.CustomDomainStatus),
		CustomDomainVerified: s.CustomDomainVerified,
		IsActive:             s.IsActive,
		Description:          s.Description,
		Email:                s.Email,
		Phone:                s.Phone,
		Currency:             s.Currency,
		LogoURL:              s.LogoURL,
		ThemeID:              s.ThemeID,
		CreatedAt:            s.CreatedAt,
	}
	if m.CustomDomainStatus == "" {
		m.CustomDomainStatus = string(types.DomainStatusPending)
	}
	if s.CustomDomain != "" {
		domain := s.CustomDomain
		m.CustomDomain = &domain
	}
	return m
}

func productFromModel(m *Product) (types.Product, error) {
	p := types.Product{
		ID:             m.ID,
		StoreID:        m.StoreID,
		Handle:         m.Handle,
		Title:          m.Title,
		Description:    m.Description,
		Price:          m.Price,
		CompareAtPrice: m.CompareAtPrice,
		Vendor:         m.Vendor,
		Available:      m.Available,
	}
	if err := fromJSON(m.Images, &p.Images); err != nil {
		return p, err
	}
	if err := fromJSON(m.Tags, &p.Tags); err != nil {
		return p, err
	}
	if err := fromJSON(m.CollectionIDs, &p.CollectionIDs); err != nil {
		return p, err
	}
	return p, nil
}

func productToModel(p *types.Product) (*Product, error) {
	m := &Product{
		ID:             p.ID,
		StoreID:        p.StoreID,
		Handle:         p.Handle,
		Title:          p.Title,
		Description:    p.Description,
		Price:          p.Price,
		CompareAtPrice: p.CompareAtPrice,
		Vendor:         p.Vendor,
		Available:      p.Available,
	}
	var err error
	if m.Images, err = toJSON(p.Images); err != nil {
		return nil, err
	}
	if m.Tags, err = toJSON(p.Tags); err != nil {
		return nil, err
	}
	if m.CollectionIDs, err = toJSON(p.CollectionIDs); err != nil {
		return nil, err
	}
	return m, nil
}

func collectionFromModel(m *Collection) (types.Collection, error) {
	c := types.Collection{
		ID:          m.ID,
		StoreID:     m.StoreID,
		Handle:      m.Handle,
		Title:       m.Title,
		Description: m.Description,
		ImageURL:    m.ImageURL,
	}
	err := fromJSON(m.ProductIDs, &c.ProductIDs)
	return c, err
}

func collectionToModel(c *types.Collection) (*Collection, error) {
	productIDs, err := toJSON(c.ProductIDs)
	if err != nil {
		return nil, err
	}
	return &Collection{
		ID:          c.ID,
		StoreID:     c.StoreID,
		Handle:      c.Handle,
		Title:       c.Title,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		ProductIDs:  productIDs,
	}, nil
}
