package driver

// SchemaQueries create the constraints the stores rely on. The composite
// uniqueness on NoteVersion backs the gap-free version sequence.
var SchemaQueries = []string{
	"CREATE CONSTRAINT note_id IF NOT EXISTS FOR (n:Note) REQUIRE n.id IS UNIQUE",
	"CREATE CONSTRAINT note_version_key IF NOT EXISTS FOR (v:NoteVersion) REQUIRE (v.note_id, v.version) IS UNIQUE",
	"CREATE CONSTRAINT contradiction_id IF NOT EXISTS FOR (c:Contradiction) REQUIRE c.id IS UNIQUE",
	"CREATE INDEX note_user IF NOT EXISTS FOR (n:Note) ON (n.user_id)",
	"CREATE INDEX note_detection IF NOT EXISTS FOR (n:Note) ON (n.detection_status)",
	"CREATE INDEX contradiction_pair IF NOT EXISTS FOR (c:Contradiction) ON (c.note_a_id, c.note_b_id)",
	"CREATE INDEX relates_id IF NOT EXISTS FOR ()-[r:RELATES]-() ON (r.id)",
}

// Writes that must be serialized per node first bump write_seq: the SET
// takes the node's write lock, so later reads in the same statement see the
// committed state.
const (
	CreateNoteQuery = `
		CREATE (n:Note {
			id: $id,
			user_id: $user_id,
			title: $title,
			body: $body,
			category: $category,
			tags: $tags,
			visibility: $visibility,
			version: 1,
			detection_status: $detection_status,
			created_at: $created_at,
			updated_at: $updated_at
		})
		CREATE (n)-[:HAS_VERSION]->(:NoteVersion {
			note_id: $id,
			version: 1,
			title: $title,
			body: $body,
			category: $category,
			tags: $tags,
			visibility: $visibility,
			change_summary: $change_summary,
			created_at: $created_at
		})
		RETURN n.id AS id
	`

	AppendVersionQuery = `
		MATCH (n:Note {id: $id})
		SET n.write_seq = coalesce(n.write_seq, 0) + 1
		WITH n
		WHERE n.version = $expected_version
		SET n.version = $expected_version + 1,
			n.title = $title,
			n.body = $body,
			n.category = $category,
			n.tags = $tags,
			n.visibility = $visibility,
			n.detection_status = $detection_status,
			n.updated_at = $updated_at
		CREATE (n)-[:HAS_VERSION]->(:NoteVersion {
			note_id: $id,
			version: $expected_version + 1,
			title: $title,
			body: $body,
			category: $category,
			tags: $tags,
			visibility: $visibility,
			change_summary: $change_summary,
			created_at: $updated_at
		})
		RETURN n.version AS version
	`

	GetNoteQuery = `
		MATCH (n:Note {id: $id})
		RETURN n
	`

	ListNotesQuery = `
		MATCH (n:Note)
		WHERE ($user_id = "" OR n.user_id = $user_id OR ($include_public AND n.visibility = "public"))
			AND ($category = "" OR n.category = $category)
			AND ($tag = "" OR $tag IN n.tags)
		RETURN n
		ORDER BY n.updated_at DESC
		LIMIT $limit
	`

	GetHistoryQuery = `
		MATCH (:Note {id: $id})-[:HAS_VERSION]->(v:NoteVersion)
		RETURN v
		ORDER BY v.version ASC
	`

	DeleteNoteQuery = `
		MATCH (n:Note {id: $id})
		OPTIONAL MATCH (n)-[:HAS_VERSION]->(v:NoteVersion)
		OPTIONAL MATCH (c:Contradiction)-[:INVOLVES]->(n)
		WITH n, collect(DISTINCT v) AS versions, collect(DISTINCT c) AS contradictions
		FOREACH (x IN versions | DETACH DELETE x)
		FOREACH (x IN contradictions | DETACH DELETE x)
		DETACH DELETE n
		RETURN count(*) AS deleted
	`

	SetDetectionStatusQuery = `
		MATCH (n:Note {id: $id})
		WHERE $version = 0 OR n.version = $version
		SET n.detection_status = $status
		RETURN n.id AS id
	`

	ListNotesByDetectionStatusQuery = `
		MATCH (n:Note {detection_status: $status})
		RETURN n.id AS id
		ORDER BY n.updated_at ASC
		LIMIT $limit
	`

	CountNotesQuery = `
		MATCH (n:Note {id: $source_id})
		MATCH (m:Note {id: $target_id})
		RETURN count(*) AS found
	`
)

const (
	CreateDirectedEdgeQuery = `
		MATCH (s:Note {id: $source_id})
		MATCH (t:Note {id: $target_id})
		SET s.write_seq = coalesce(s.write_seq, 0) + 1,
			t.write_seq = coalesce(t.write_seq, 0) + 1
		WITH s, t
		WHERE NOT (s)-[:RELATES {type: $type}]->(t)
		CREATE (s)-[e:RELATES {
			id: $id,
			type: $type,
			strength: $strength,
			created_at: $created_at
		}]->(t)
		RETURN e.id AS id
	`

	CreateUndirectedEdgeQuery = `
		MATCH (s:Note {id: $source_id})
		MATCH (t:Note {id: $target_id})
		SET s.write_seq = coalesce(s.write_seq, 0) + 1,
			t.write_seq = coalesce(t.write_seq, 0) + 1
		WITH s, t
		WHERE NOT (s)-[:RELATES {type: $type}]-(t)
		CREATE (s)-[e:RELATES {
			id: $id,
			type: $type,
			strength: $strength,
			created_at: $created_at
		}]->(t)
		RETURN e.id AS id
	`

	GetEdgeQuery = `
		MATCH (s:Note)-[e:RELATES {id: $id}]->(t:Note)
		RETURN e, s.id AS source_id, t.id AS target_id
	`

	DeleteEdgeQuery = `
		MATCH (:Note)-[e:RELATES {id: $id}]->(:Note)
		WITH e
		DELETE e
		RETURN count(*) AS deleted
	`

	NeighborsQuery = `
		MATCH (n:Note {id: $id})-[e:RELATES]-(:Note)
		WHERE size($types) = 0 OR e.type IN $types
		RETURN e, startNode(e).id AS source_id, endNode(e).id AS target_id
		ORDER BY e.created_at ASC
	`

	UserEdgesQuery = `
		MATCH (s:Note {user_id: $user_id})-[e:RELATES]->(t:Note {user_id: $user_id})
		RETURN e, s.id AS source_id, t.id AS target_id
		ORDER BY e.created_at ASC
	`
)

const (
	CreateContradictionQuery = `
		MATCH (a:Note {id: $note_a_id})
		MATCH (b:Note {id: $note_b_id})
		SET a.write_seq = coalesce(a.write_seq, 0) + 1,
			b.write_seq = coalesce(b.write_seq, 0) + 1
		WITH a, b
		WHERE NOT (a)<-[:INVOLVES]-(:Contradiction {status: "unresolved"})-[:INVOLVES]->(b)
		CREATE (c:Contradiction)
		SET c = $props
		CREATE (c)-[:INVOLVES]->(a)
		CREATE (c)-[:INVOLVES]->(b)
		RETURN c.id AS id
	`

	GetContradictionQuery = `
		MATCH (c:Contradiction {id: $id})
		RETURN c
	`

	FindContradictionsByPairQuery = `
		MATCH (c:Contradiction {note_a_id: $note_a_id, note_b_id: $note_b_id})
		RETURN c
		ORDER BY c.detected_at DESC
	`

	UpdateContradictionQuery = `
		MATCH (c:Contradiction {id: $id})
		SET c.write_seq = coalesce(c.write_seq, 0) + 1
		WITH c
		WHERE c.revision = $expected_revision
		SET c += $props, c.revision = $expected_revision + 1
		RETURN c.revision AS revision
	`

	ListContradictionsQuery = `
		MATCH (c:Contradiction)
		WHERE ($user_id = "" OR $user_id IN c.user_ids)
			AND ($status = "" OR c.status = $status)
			AND ($note_id = "" OR c.note_a_id = $note_id OR c.note_b_id = $note_id)
		RETURN c
		ORDER BY c.detected_at DESC
	`
)
