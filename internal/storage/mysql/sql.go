package mysql

// Note: `text` is reserved; keep it quoted everywhere.
const upsertReviewSQL = "INSERT INTO reviews\n  (id, `text`, review_date, metadata)\nVALUES\n  (?, ?, ?, ?)\n" +
	"ON DUPLICATE KEY UPDATE\n" +
	"  `text`      = COALESCE(VALUES(`text`), reviews.`text`),\n" +
	"  review_date = COALESCE(VALUES(review_date), reviews.review_date),\n" +
	"  metadata    = COALESCE(VALUES(metadata), reviews.metadata)\n"

const insertSentimentSQL = `
INSERT INTO sentiments (review_id, score, summary)
VALUES (?, ?, ?)
`

const insertClassificationSQL = `
INSERT INTO classifications (review_id, label)
VALUES (?, ?)
`

const insertTopicSQL = `
INSERT INTO topics (label, review_ids)
VALUES (?, ?)
`

const insertWeeklySummarySQL = `
INSERT INTO weekly_summaries (summary_text, generated_at)
VALUES (?, ?)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// Sentiments at or below the threshold, newest first. The review side is a
// LEFT JOIN so orphaned sentiment rows surface with NULL review columns and are
// dropped by the caller.
const listNegativeSentimentsSQL = "SELECT\n" +
	"  s.review_id,\n" +
	"  s.score,\n" +
	"  r.id,\n" +
	"  r.`text`,\n" +
	"  r.review_date\n" +
	"FROM sentiments s\n" +
	"LEFT JOIN reviews r ON r.id = s.review_id\n" +
	"WHERE s.score <= ?\n" +
	"ORDER BY s.created_at DESC, s.id DESC\n" +
	"LIMIT ?"

const getReviewSQL = "SELECT id, `text`, review_date, metadata FROM reviews WHERE id = ?"

// Each review flattened with its most recent sentiment and classification.
const reviewRowsSelect = "SELECT\n" +
	"  r.id,\n" +
	"  r.`text`,\n" +
	"  r.review_date,\n" +
	"  r.metadata,\n" +
	"  (SELECT s.score FROM sentiments s WHERE s.review_id = r.id ORDER BY s.created_at DESC, s.id DESC LIMIT 1),\n" +
	"  (SELECT c.label FROM classifications c WHERE c.review_id = r.id ORDER BY c.created_at DESC, c.id DESC LIMIT 1)\n" +
	"FROM reviews r\n"

const listReviewRowsSQL = reviewRowsSelect +
	"ORDER BY r.review_date DESC, r.id\n" +
	"LIMIT ?"

const listReviewRowsSinceSQL = reviewRowsSelect +
	"WHERE r.review_date >= ?\n" +
	"ORDER BY r.review_date DESC, r.id"

const sampleReviewsSQL = "SELECT id, `text`, review_date, metadata\n" +
	"FROM reviews\n" +
	"WHERE `text` IS NOT NULL AND `text` <> ''\n" +
	"ORDER BY created_at DESC, id\n" +
	"LIMIT ?"

const listSentimentPointsSQL = `
SELECT r.review_date, s.score
FROM sentiments s
JOIN reviews r ON r.id = s.review_id
WHERE r.review_date IS NOT NULL
ORDER BY r.review_date ASC, s.id ASC
`

const listTopicsSQL = `
SELECT topic_id, label, review_ids
FROM topics
ORDER BY topic_id DESC
`

const latestWeeklySummarySQL = `
SELECT id, summary_text, generated_at
FROM weekly_summaries
ORDER BY generated_at DESC, id DESC
LIMIT 1
`
