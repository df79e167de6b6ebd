package repository

import "fmt"

const upsertUserCypher = `
MERGE (u:User {userId: $userId})
SET u += $props
RETURN u.userId AS userId
`

const upsertConnectionCypher = `
MATCH (a:User {userId: $sourceId})
MATCH (b:User {userId: $targetId})
MERGE (a)-[c:CONNECTED_TO]->(b)
SET c.strength = $strength, c.type = $type, c.lastActiveAt = $lastActiveAt, c.updatedAt = $updatedAt
FOREACH (_ IN CASE WHEN $mutual THEN [1] ELSE [] END |
	MERGE (b)-[m:CONNECTED_TO]->(a)
	SET m.strength = $strength, m.type = $type, m.lastActiveAt = $lastActiveAt, m.updatedAt = $updatedAt
)
RETURN a.userId AS sourceId
`

const snapshotEndpointsCypher = `
UNWIND $userIds AS id
MATCH (u:User {userId: id})
RETURN DISTINCT u.userId AS userId, properties(u) AS props
`

// Variable-length bounds cannot be parameterised, so the depth is formatted in.
const snapshotEdgesTemplate = `
MATCH p = (:User {userId: $sourceId})-[:CONNECTED_TO*0..%d]->(n:User)
WITH n, min(length(p)) AS depth
MATCH (n)-[c:CONNECTED_TO]->(m:User)
RETURN n.userId AS fromId, m.userId AS toId, c.strength AS strength, c.type AS type, c.lastActiveAt AS lastActiveAt, depth
ORDER BY depth, fromId, toId
LIMIT $limit
`

const snapshotAllEdgesCypher = `
MATCH (n:User)-[c:CONNECTED_TO]->(m:User)
RETURN n.userId AS fromId, m.userId AS toId, c.strength AS strength, c.type AS type, c.lastActiveAt AS lastActiveAt
ORDER BY CASE WHEN n.userId = $sourceId THEN 0 ELSE 1 END, fromId, toId
LIMIT $limit
`

const recordQueryCypher = `
MATCH (u:User {userId: $userId})
SET u.successfulQueries = coalesce(u.successfulQueries, 0) + 1, u.lastQueryAt = $at
RETURN u.successfulQueries AS count
`

const queryCountCypher = `
MATCH (u:User {userId: $userId})
RETURN coalesce(u.successfulQueries, 0) AS count
`

// snapshotEdgesQuery loads every edge leaving a node within maxHops-1 of the source,
// which is all a path of at most maxHops hops can use. maxHops <= 0 loads the graph.
// Edges nearest the source come first so a LIMIT cuts the far end of the search.
func snapshotEdgesQuery(maxHops int) string {
	if maxHops <= 0 {
		return snapshotAllEdgesCypher
	}
	return fmt.Sprintf(snapshotEdgesTemplate, maxHops-1)
}
