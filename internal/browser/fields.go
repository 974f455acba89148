package browser

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/sumanthpn07/lazyApply/internal/session"
)

// formFieldsJS lists visible, fillable controls as a JSON string.
// Controls without id or name get a data attribute so they stay addressable.
const formFieldsJS = `() => {
  const out = [];
  const skip = new Set(["hidden", "submit", "button", "reset", "image"]);
  const els = document.querySelectorAll("input, select, textarea");
  els.forEach((el, i) => {
    const type = (el.getAttribute("type") || el.tagName).toLowerCase();
    if (skip.has(type)) return;
    if (el.offsetParent === null && type !== "file") return;
    let selector;
    if (el.id) {
      selector = "#" + CSS.escape(el.id);
    } else if (el.name) {
      selector = el.tagName.toLowerCase() + '[name="' + el.name.replace(/"/g, '\\"') + '"]';
    } else {
      el.setAttribute("data-lazyapply-idx", String(i));
      selector = '[data-lazyapply-idx="' + i + '"]';
    }
    let label = "";
    if (el.id) {
      const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
      if (l) label = l.innerText;
    }
    if (!label && el.closest("label")) label = el.closest("label").innerText;
    if (!label) label = el.getAttribute("aria-label") || el.getAttribute("placeholder") || "";
    let value = el.value || "";
    if (type === "checkbox" || type === "radio") value = el.checked ? "true" : "";
    out.push({
      selector: selector,
      name: el.name || el.id || "",
      label: label.trim(),
      kind: el.tagName.toLowerCase() === "select" ? "select" : (el.tagName.toLowerCase() === "textarea" ? "textarea" : type),
      required: el.required || el.getAttribute("aria-required") === "true",
      value: value,
    });
  });
  return JSON.stringify(out);
}`

func decodeFormFields(raw string) ([]session.FormField, error) {
	if raw == "" {
		return nil, nil
	}
	var fields []session.FormField
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, errors.Wrap(err, "decode form fields")
	}
	return fields, nil
}
