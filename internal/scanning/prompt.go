package scanning

// billExtractionPrompt is the shared prompt used by all LLM providers for reading bills
const billExtractionPrompt = `Extract all information from this US medical bill in JSON format. Be precise with CPT codes and amounts.

Required JSON structure:
{
  "provider": {
    "name": "",
    "address": "",
    "city": "",
    "state": "",
    "zip": "",
    "npi": ""
  },
  "patient": {
    "name": "",
    "accountNumber": ""
  },
  "dateOfService": "YYYY-MM-DD",
  "procedures": [
    {
      "description": "",
      "cptCode": "",
      "icd10Code": "",
      "quantity": 1,
      "chargeAmount": 0,
      "units": 1
    }
  ],
  "totalCharges": 0,
  "insurancePayment": 0,
  "adjustments": 0,
  "patientResponsibility": 0
}

Important:
1. Extract exact CPT codes (5-character codes like 99214, 80053). If no CPT code is visible for a line, leave it empty. Never guess a code from the description.
2. Extract every procedure/service line item with its charge.
3. Extract diagnosis codes (ICD-10) if present.
4. Capture the provider name, address (especially the two-letter state) and the date of service.
5. Monetary amounts must be numbers in dollars and cents (e.g. 42.75 for $42.75), not strings.
6. If a field is not available, use an empty string for text fields and 0 for numbers.
7. Return ONLY the JSON object. Do not include any text before or after it and do not use markdown code blocks.`

const systemPrompt = "You are an expert medical billing specialist. You carefully read every line of a medical bill and transcribe it exactly."
