// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"text/template"
)

// systemPrompt frames every extraction call.
const systemPrompt = "You are a food logging assistant that only replies in valid JSON."

// extractionPromptTmpl turns one meal description into the JSON document
// parsed by parseResponse.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`Analyze a message in which a user describes what they ate so each food can be logged. Work through these steps:

1. Find every distinct food. Each entry must be something a nutrition database could contain.

2. Correct typos and transcription mistakes. Messages are typed quickly or dictated, so "one pair" most likely means "one pear" and "lin choclate" means "lindt chocolate".

3. Keep foods separate unless they form one conventional product. A flavored yogurt is one item; a pancake with whipped cream is two.

4. Set "full_single_food_database_search_name" to a name specific enough to find the right record, including preparation where it matters (cooked or dry oats, salted or unsalted butter).

5. Set "full_single_item_user_message_including_serving_or_quantity" to everything the user said about that one item, with stated or reasonably inferred quantity ("100g of full-fat salted butter"). Leave out other items; they get their own entry.

6. Across all items the quantities must add up to exactly what the user ate. Never count the same quantity twice and never drop one.

7. Translate non-English text to English. You may keep the original wording in parentheses after the translation.

8. When a word looks like a brand or restaurant, set "branded" to true and put it in "brand". Otherwise use false and an empty string.

9. If the user states nutrition facts for an item, add them to "nutrition_hints" keyed by nutrient (calories, protein, fat, carbs). Each value is a number or an arithmetic expression such as "2 * 110".

10. If the message contains no identifiable food, return an empty "food_items" list and set "contains_valid_food_items" to false. Never invent foods.

Reply with the JSON document only.

Message:
"{{.Message}}"

Expected JSON:
{
  "food_items": [
    {
      "full_single_food_database_search_name": "string",
      "full_single_item_user_message_including_serving_or_quantity": "string",
      "branded": false,
      "brand": "string",
      "nutrition_hints": {}
    }
  ],
  "contains_valid_food_items": true
}
`))

// renderPrompt fills the extraction template with the user's message.
func renderPrompt(message string) (string, error) {
	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, struct{ Message string }{message}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
