package sealink

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// APIServer exposes the client over a local HTTP API so a UI process
// can drive it. It binds loopback only; nothing here is meant for the
// open internet.
type APIServer struct {
	client *Client
	router *mux.Router
	port   int
}

// NewAPIServer wires the routes for a client.
func NewAPIServer(client *Client, port int) *APIServer {
	a := &APIServer{client: client, port: port}
	a.getRouter()
	return a
}

// Run starts the API listener. Blocks.
func (a *APIServer) Run() error {
	log.Info(colors.boldYellow+"HTTP"+colors.reset, "Starting API on port "+strconv.Itoa(a.port)+".")
	return http.ListenAndServe("127.0.0.1:"+strconv.Itoa(a.port),
		handlers.CORS(handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"}),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "HEAD", "OPTIONS", "PATCH", "DELETE"}),
			handlers.AllowedOrigins([]string{"*"}))(a.router))
}

func (a *APIServer) getRouter() {
	r := mux.NewRouter()
	r.Use(a.recoverMiddleware)

	r.Handle("/identity", a.wrap(a.createIdentity)).Methods("POST")
	r.Handle("/login", a.wrap(a.login)).Methods("POST")
	r.Handle("/logout", a.wrap(a.logout)).Methods("POST")
	r.Handle("/status", a.wrap(a.updateStatus)).Methods("POST")

	r.Handle("/contacts", a.wrap(a.listContacts)).Methods("GET")
	r.Handle("/contacts/{key}/messages", a.wrap(a.listMessages)).Methods("GET")
	r.Handle("/messages", a.wrap(a.sendMessage)).Methods("POST")

	r.Handle("/requests", a.wrap(a.listRequests)).Methods("GET")
	r.Handle("/requests", a.wrap(a.sendRequest)).Methods("POST")
	r.Handle("/requests/{id}/accept", a.wrap(a.acceptRequest)).Methods("POST")
	r.Handle("/requests/{id}/decline", a.wrap(a.declineRequest)).Methods("POST")

	r.Handle("/groups", a.wrap(a.listGroups)).Methods("GET")
	r.Handle("/groups", a.wrap(a.createGroup)).Methods("POST")
	r.Handle("/groups/{id}/members", a.wrap(a.addGroupMember)).Methods("POST")
	r.Handle("/groups/{id}/members/{key}", a.wrap(a.removeGroupMember)).Methods("DELETE")
	r.Handle("/groups/{id}/messages", a.wrap(a.listGroupMessages)).Methods("GET")
	r.Handle("/groups/{id}/messages", a.wrap(a.sendGroupMessage)).Methods("POST")

	a.router = r
}

type apiHandler func(req *http.Request) (interface{}, error)

func (a *APIServer) wrap(handler apiHandler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		log.Info(colors.boldYellow+"HTTP"+colors.reset, req.Method, req.URL, GetIP(req))

		data, err := handler(req)
		res.Header().Set("Content-Type", "application/json")
		if err != nil {
			res.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(res).Encode(apiResponse{Success: false, Error: err.Error()})
			return
		}
		res.WriteHeader(http.StatusOK)
		json.NewEncoder(res).Encode(apiResponse{Success: true, Data: data})
	})
}

// recoverMiddleware turns session precondition panics into clean 401s
// instead of dropped connections.
func (a *APIServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		defer func() {
			if r := recover(); r != nil {
				log.Warning("Recovered API handler: ", r)
				res.Header().Set("Content-Type", "application/json")
				res.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(res).Encode(apiResponse{Success: false, Error: ErrNotUnlocked.Error()})
			}
		}()
		next.ServeHTTP(res, req)
	})
}

func decodeBody(req *http.Request, v interface{}) error {
	defer req.Body.Close()
	return json.NewDecoder(req.Body).Decode(v)
}

func (a *APIServer) createIdentity(req *http.Request) (interface{}, error) {
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{}
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	return a.client.CreateIdentity(body.Username, body.Password)
}

func (a *APIServer) login(req *http.Request) (interface{}, error) {
	body := struct {
		Password string `json:"password"`
	}{}
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if err := a.client.Login(body.Password); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *APIServer) logout(req *http.Request) (interface{}, error) {
	a.client.Logout()
	return nil, nil
}

func (a *APIServer) updateStatus(req *http.Request) (interface{}, error) {
	body := struct {
		Status string `json:"status"`
	}{}
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	a.client.Session().UpdateStatus(body.Status)
	return nil, nil
}

func (a *APIServer) listContacts(req *http.Request) (interface{}, error) {
	return a.client.store.GetContacts()
}

func (a *APIServer) listMessages(req *http.Request) (interface{}, error) {
	limit := 100
	if param := req.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err == nil {
			limit = parsed
		}
	}
	return a.client.store.GetMessages(mux.Vars(req)["key"], limit)
}

func (a *APIServer) sendMessage(req *http.Request) (interface{}, error) {
	body := struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}{}
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	return a.client.Session().SendMessage(body.To, body.Text)
}

func (a *APIServer) listRequests(req *http.Request) (interface{}, error) {
	return a.client.store.GetContactRequests()
}

func (a *APIServer) sendRequest(req *http.Request) (interface{}, error) {
	body := struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}{}
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	return a.client.Session().SendContactRequest(body.To, body.Message)
}

func (a *APIServer) acceptRequest(req *http.Request) (interface{}, error) {
	return a.client.Session().AcceptContactRequest(mux.Vars(req)["id"])
}

func (a *APIServer) declineRequest(req *http.Request) (interface{}, error) {
	return a.client.Session().DeclineContactRequest(mux.Vars(req)["id"])
}

func (a *APIServer) listGroups(req *http.Request) (interface{}, error) {
	return a.client.store.GetGroups()
}

func (a *APIServer) createGroup(req *http.Request) (interface{}, error) {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}{}
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	return a.client.Session().CreateGroup(body.Name, body.Description)
}

func (a *APIServer) addGroupMember(req *http.Request) (interface{}, error) {
	body := struct {
		PublicKey string `json:"publicKey"`
	}{}
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	return a.client.Session().AddGroupMember(mux.Vars(req)["id"], body.PublicKey)
}

func (a *APIServer) removeGroupMember(req *http.Request) (interface{}, error) {
	vars := mux.Vars(req)
	return nil, a.client.Session().RemoveGroupMember(vars["id"], vars["key"])
}

func (a *APIServer) listGroupMessages(req *http.Request) (interface{}, error) {
	return a.client.store.GetGroupMessages(mux.Vars(req)["id"], 100)
}

func (a *APIServer) sendGroupMessage(req *http.Request) (interface{}, error) {
	body := struct {
		Text string `json:"text"`
	}{}
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	return a.client.Session().SendGroupMessage(mux.Vars(req)["id"], body.Text)
}
