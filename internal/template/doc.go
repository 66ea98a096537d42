// Package template is the host templating engine for site pages.
//
// Templates are Go text/template documents. Liquid-style markup is converted
// before parsing, so both of these render the same way:
//
//	{{ page.title | replace_chars: "abc", "xyz" }}
//	{{ .page.title | replace_chars "abc" "xyz" }}
//
// Filters are not global. The embedding application builds a
// filters.Registry and passes it to NewEngine:
//
//	reg := filters.Standard(logger)
//	engine := template.NewEngine(reg, template.WithStrictVariables(true))
//	out, err := engine.Render("index.html", src, vars)
//
// # Tags
//
//   - {% if x %}, {% elsif y %}, {% else %}, {% endif %}
//   - {% unless x %} ... {% endunless %}
//   - {% for item in list %} ... {% endfor %}
//   - {% assign name = expr | filter %}
//
// Comparisons (==, !=, <, <=, >, >=) and homogeneous and/or chains are
// supported in conditions.
package template
