package analysis

const systemPrompt = `You are a D&D session analyst. Your job is to read session transcripts and extract structured information.

You will receive a transcript with speaker labels, where one speaker is typically the DM/GM describing scenes and others are players.

Respond ONLY with valid JSON matching the schema provided. Do not include any text outside the JSON.`

const userPromptTemplate = `## Session Transcript
%s

## Task
Analyze this D&D session transcript and extract:

1. **Session Summary**: 2-3 sentence overview
2. **Detailed Summary**: Narrative paragraph (200-400 words)
3. **Key Events**: Major plot points, discoveries, decisions
4. **Combat Encounters**: Battles that occurred (if any)
5. **NPCs Mentioned**: Characters that appeared or were mentioned
6. **Locations Mentioned**: Places visited or referenced

## Response Schema
` + "```json" + `
{
  "short_summary": "2-3 sentence overview",
  "detailed_summary": "Full narrative summary paragraph",
  "key_events": [
    {
      "description": "What happened",
      "participants": ["Character names involved"],
      "significance": "major or minor"
    }
  ],
  "combat_encounters": [
    {
      "enemies": ["Enemy names"],
      "outcome": "victory, defeat, fled, or negotiated",
      "notable_moments": ["Notable things that happened"]
    }
  ],
  "npcs_mentioned": [
    {
      "name": "NPC name",
      "description": "Brief description if provided",
      "role": "Their role (merchant, villain, ally, etc.)"
    }
  ],
  "locations_mentioned": [
    {
      "name": "Location name",
      "type": "city, dungeon, tavern, wilderness, etc.",
      "description": "Brief description if provided"
    }
  ]
}
` + "```" + `

Respond with ONLY the JSON, no additional text.`

// truncationNotice is appended when a transcript is cut to fit the context window.
const truncationNotice = "\n\n[Transcript truncated due to length]"
