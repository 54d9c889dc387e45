package shopify

// Box is a crop rectangle: x, y, width, height.
type Box [4]float64

// MetafieldKey names a product metafield to return with each product.
type MetafieldKey struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// SearchParams are the inputs of SearchImage. Nil fields are left out of the
// outgoing requests.
type SearchParams struct {
	ImageID    string
	XYWH       *Box
	Metafields []MetafieldKey
	Country    *string
	Lang       *string
}

// SimilarProductParams are the inputs of SimilarProducts.
type SimilarProductParams struct {
	ProductID string
	ImageURL  *string
	Country   *string
	Lang      *string
	// Metafields is sent when non-nil, even if empty.
	Metafields []MetafieldKey
}

// UploadResult is the upload_image response body.
type UploadResult struct {
	Result  *bool  `json:"result,omitempty"`
	ImageID string `json:"image_id"`
}

// SearchResponse is the product lookup response body.
type SearchResponse struct {
	Result   bool      `json:"result"`
	Products []Product `json:"products"`
}

// Product mirrors one storefront product returned by the plugin API.
type Product struct {
	ID         string           `json:"id"`
	Available  bool             `json:"available"`
	Title      string           `json:"title"`
	Handle     string           `json:"handle"`
	Images     []*ImageRef      `json:"images"`
	Price      string           `json:"price"`
	Currency   string           `json:"currency"`
	Variants   Variants         `json:"variants"`
	Collection []CollectionEdge `json:"collection"`
	Metafields []*Metafield     `json:"metafields"`
}

type ImageRef struct {
	URL string `json:"url"`
}

type Variants struct {
	Nodes []Variant `json:"nodes"`
}

type Variant struct {
	ID               string           `json:"id"`
	AvailableForSale bool             `json:"availableForSale"`
	Price            Money            `json:"price"`
	CompareAtPrice   *Money           `json:"compareAtPrice"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
}

type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CollectionEdge struct {
	Node CollectionNode `json:"node"`
}

type CollectionNode struct {
	Image  *ImageRef `json:"image"`
	Title  string    `json:"title"`
	Handle string    `json:"handle"`
}

// Metafield is a resolved metafield reference. Entries may be null in the
// response when a product has no value for the requested key.
type Metafield struct {
	Reference MetafieldReference `json:"reference"`
}

type MetafieldReference struct {
	ID     string           `json:"id"`
	Type   string           `json:"type"`
	Fields []MetafieldField `json:"fields"`
}

type MetafieldField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
