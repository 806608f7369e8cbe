// FILE: doc.go
package sasl

/*
Package sasl implements the SASL authentication core used by a
Memcached-compatible binary-protocol server: SCRAM-SHA1/256/512 (RFC
5802) and PLAIN, a multi-mechanism password store, and the RBAC
privilege database consulted on every command dispatch.

# Mechanism registry

	store := sasl.NewStore()
	store.LoadFile("isasl.json")
	registry := sasl.NewRegistry(store)
	registry.SetEnabledMechanisms("SCRAM-SHA512,SCRAM-SHA256,PLAIN")

# Server-side exchange

	session := sasl.NewServerSession()
	mech := sasl.ParseMechanism("SCRAM-SHA256")
	state, _ := registry.CreateServer(mech, session)
	session.Bind(state, mech)
	result, out, err := session.Start(clientFirst)
	result, out, err = session.Step(clientFinal)

# Client-side exchange

	session := sasl.NewClientSession(getUsername, getPassword)
	state, _ := registry.CreateClient(mech, session)
	session.Bind(state, mech)
	result, out, err := session.Start(nil)

# RBAC

	rbac := sasl.NewRBACStore()
	rbac.Load(rbacJSON)
	ctx, _ := rbac.CreateContext(username, bucket)
	access := ctx.Check(sasl.PrivilegeRead, rbac.Current().Generation())

Each component can be used independently; the Registry and Store are the
only pieces expected to be constructed once and shared process-wide.
*/