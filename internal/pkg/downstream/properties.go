package downstream

import "strconv"

type PropertyType string

const (
	TypeTitle       PropertyType = "title"
	TypeRichText    PropertyType = "rich_text"
	TypeNumber      PropertyType = "number"
	TypeSelect      PropertyType = "select"
	TypeMultiSelect PropertyType = "multi_select"
	TypeCheckbox    PropertyType = "checkbox"
	TypeURL         PropertyType = "url"
	TypeDate        PropertyType = "date"
	TypeFiles       PropertyType = "files"
)

// Property is one typed record field. Only the member matching Type is set.
type Property struct {
	Type     PropertyType `json:"type"`
	Text     string       `json:"text,omitempty"`
	Number   *float64     `json:"number,omitempty"`
	Checkbox *bool        `json:"checkbox,omitempty"`
	Names    []string     `json:"names,omitempty"`
	URLs     []string     `json:"urls,omitempty"`
}

// Properties maps record property names to values
type Properties map[string]Property

func Title(s string) Property    { return Property{Type: TypeTitle, Text: s} }
func RichText(s string) Property { return Property{Type: TypeRichText, Text: s} }
func Select(s string) Property   { return Property{Type: TypeSelect, Text: s} }
func URL(s string) Property      { return Property{Type: TypeURL, Text: s} }

// Date takes an ISO-8601 date or date-time
func Date(iso string) Property { return Property{Type: TypeDate, Text: iso} }

func Number(f float64) Property { return Property{Type: TypeNumber, Number: &f} }

func Checkbox(b bool) Property { return Property{Type: TypeCheckbox, Checkbox: &b} }

func MultiSelect(names ...string) Property {
	return Property{Type: TypeMultiSelect, Names: names}
}

func Files(urls ...string) Property {
	return Property{Type: TypeFiles, URLs: urls}
}

// Clone returns a copy safe to extend without touching the original
func (p Properties) Clone() Properties {
	out := make(Properties, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// render converts a property to the record store's JSON shape
func (p Property) render() interface{} {
	switch p.Type {
	case TypeTitle:
		return map[string]interface{}{"title": textBlocks(p.Text)}
	case TypeRichText:
		return map[string]interface{}{"rich_text": textBlocks(p.Text)}
	case TypeNumber:
		return map[string]interface{}{"number": p.Number}
	case TypeSelect:
		return map[string]interface{}{"select": map[string]string{"name": p.Text}}
	case TypeMultiSelect:
		opts := make([]map[string]string, 0, len(p.Names))
		for _, n := range p.Names {
			opts = append(opts, map[string]string{"name": n})
		}
		return map[string]interface{}{"multi_select": opts}
	case TypeCheckbox:
		v := false
		if p.Checkbox != nil {
			v = *p.Checkbox
		}
		return map[string]interface{}{"checkbox": v}
	case TypeURL:
		return map[string]interface{}{"url": p.Text}
	case TypeDate:
		return map[string]interface{}{"date": map[string]string{"start": p.Text}}
	case TypeFiles:
		files := make([]map[string]interface{}, 0, len(p.URLs))
		for i, u := range p.URLs {
			files = append(files, map[string]interface{}{
				"name":     "file-" + strconv.Itoa(i+1),
				"type":     "external",
				"external": map[string]string{"url": u},
			})
		}
		return map[string]interface{}{"files": files}
	}
	return nil
}

func textBlocks(s string) []map[string]interface{} {
	return []map[string]interface{}{
		{"type": "text", "text": map[string]string{"content": s}},
	}
}
