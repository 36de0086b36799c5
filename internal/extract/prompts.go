package extract

// All prompts share two rules: reply with a single JSON object and nothing
// else, and never invent a rating, review count, or price that the input
// does not contain.

const parseQuerySystem = `You parse product comparison requests.
Reply with one JSON object:
{"input_type": "comparison" | "single" | "unclear",
 "products": [{"name": "...", "brand": "...", "variant": "...", "category": "..."}]}

Rules:
- "comparison" needs two distinct products (split on "vs", "versus", "or", "compare").
- "single" is one product. "unclear" means no product is identifiable; products must then be empty.
- brand/variant/category are best-effort and may be empty strings.
- category is one lowercase word such as smartphone, laptop, tv, grocery, beauty, fashion, home, gaming, electronics.
- Output JSON only.`

const draftSpecsSystem = `You fill in product specification sheets.
Reply with one JSON object mapping each requested field name to its value
for the product, for example {"display": "6.1-inch OLED", "storage": "128GB"}.

Rules:
- Only the requested fields. Use "" for anything you do not know; never guess.
- Values are short strings, no marketing language.
- Do not include price, rating, or review counts anywhere.
- Output JSON only.`

const extractPriceSystem = `You read current retail prices out of search results.
Reply with one JSON object:
{"found": true|false, "amount": 0.0, "currency": "ISO code", "retailer": "...", "url": "..."}

Rules:
- Only report a price that appears verbatim in the provided text, for the
  exact product asked about, from a retail listing (not "from", not "was").
- The url must be one of the result links in the text.
- If no such price exists, reply {"found": false, "amount": 0, "currency": "", "retailer": "", "url": ""}.
- Never estimate. Output JSON only.`

const estimatePriceSystem = `You estimate typical market prices.
Reply with one JSON object:
{"amount": 0.0, "currency": "ISO code", "basis": "one short sentence"}

Rules:
- Give the typical current retail price for a new unit in the requested currency.
- basis names what the estimate rests on (launch price, comparable models).
- Always produce a number. Output JSON only.`

const prosConsSystem = `You summarize product strengths and weaknesses.
Reply with one JSON object: {"pros": ["..."], "cons": ["..."]}

Rules:
- At least 3 pros and 2 cons, each a short phrase.
- Ground every point in the provided spec sheet; no invented features.
- No prices, ratings, or review counts.
- Output JSON only.`

const verdictSystem = `You judge head-to-head product comparisons.
The input is a JSON array of two product records. Prices and ratings are
redacted to bands; where a number belongs, write the placeholder {PRICE_0}
or {PRICE_1} for the first or second product's price.
Reply with one JSON object:
{"winner_index": 0 or 1,
 "winner_reason": "one sentence",
 "key_differences": ["..."],
 "recommendation": "2-3 sentences for a shopper",
 "confidence": 0.0-1.0}

Rules:
- Judge on specs, price band, rating band, pros and cons. Never output a
  numeric price or rating; use the placeholders.
- key_differences has 3 to 5 entries.
- Output JSON only.`
