package odoograph

// types.go

// Model represents an Odoo model name.
type Model string

// Models the mobile API reads. Any other model name works as well.
const (
	ModelProductTemplate Model = "product.template"
	ModelProductProduct  Model = "product.product"
	ModelProductCategory Model = "product.category"
	ModelProductTag      Model = "product.tag"
	ModelUom             Model = "uom.uom"

	ModelSaleOrder     Model = "sale.order"
	ModelSaleOrderLine Model = "sale.order.line"
	ModelCrmLead       Model = "crm.lead"
	ModelResPartner    Model = "res.partner"

	ModelAccountMove     Model = "account.move"
	ModelAccountMoveLine Model = "account.move.line"
	ModelAccountPayment  Model = "account.payment"
	ModelAccountTax      Model = "account.tax"

	ModelHrEmployee Model = "hr.employee"
	ModelResUsers   Model = "res.users"
	ModelResCompany Model = "res.company"
)

// DomainCondition represents a single element within an Odoo domain filter.
// It can be either a 3-element tuple [field, operator, value] for a condition,
// or a single string element for a logical operator like "|" or "&".
//
// Examples:
//
//	{"name", "=", "John Doe"} // A standard condition
//	{"|"}                    // A logical OR operator
type DomainCondition []any

// Domain represents a collection of DomainCondition elements.
type Domain []DomainCondition

// ToRPC converts the Domain into the list Odoo expects. Single-element
// conditions holding a string ("|", "&", "!") become bare operators.
func (d Domain) ToRPC() []any {
	rpcDomain := make([]any, 0, len(d))
	for _, cond := range d {
		if len(cond) == 1 {
			if op, ok := cond[0].(string); ok {
				rpcDomain = append(rpcDomain, op)
				continue
			}
		}
		rpcDomain = append(rpcDomain, []any(cond))
	}
	return rpcDomain
}

// DomainFromRPC is the inverse of ToRPC for domains decoded from JSON, where
// operators arrive as strings and conditions as lists.
func DomainFromRPC(raw []any) Domain {
	d := make(Domain, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case []any:
			d = append(d, DomainCondition(v))
		default:
			d = append(d, DomainCondition{v})
		}
	}
	return d
}

// Fields represents a slice of field names to retrieve from Odoo.
type Fields []string

// ToRPC converts the Fields type to a []string suitable for Odoo RPC calls.
func (f Fields) ToRPC() []string {
	if f == nil {
		return []string{}
	}
	return []string(f)
}

// OdooContext represents the 'context' dictionary passed as an option
// in Odoo RPC calls (lang, tz, active_test, ...).
type OdooContext map[string]any

// Options represents common keyword arguments for Odoo RPC methods.
type Options struct {
	Context OdooContext    `json:"context,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Offset  int            `json:"offset,omitempty"`
	Order   string         `json:"order,omitempty"` // e.g. "name asc", "date desc,id asc"
	Extra   map[string]any `json:"extra,omitempty"`
}

// ToRPC converts the Options struct into the kwargs map expected by execute_kw.
func (o *Options) ToRPC() map[string]any {
	if o == nil {
		return map[string]any{}
	}

	rpcOptions := make(map[string]any)
	if len(o.Context) > 0 {
		rpcOptions["context"] = map[string]any(o.Context)
	}
	if o.Limit > 0 { // Odoo ignores limits <= 0
		rpcOptions["limit"] = o.Limit
	}
	if o.Offset > 0 {
		rpcOptions["offset"] = o.Offset
	}
	if o.Order != "" {
		rpcOptions["order"] = o.Order
	}
	for k, v := range o.Extra {
		rpcOptions[k] = v
	}
	return rpcOptions
}

// firstOptions returns the first non-nil options as kwargs.
func firstOptions(options ...*Options) map[string]any {
	if len(options) == 0 {
		return map[string]any{}
	}
	return options[0].ToRPC()
}
