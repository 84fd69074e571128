package stompev

//Stompev is a stomp 1.2 client. It owns a single connection to a broker,
//negotiates heart-beating, tracks subscriptions and receipts and reports
//broker activity through typed events.

//Examples:

//Connect, subscribe and publish waiting for the receipt to come back from the
//server. Note example shows connection and disconnection for completeness but
//normally the connection would be long lived.

/*

	opts := stompev.ClientOpts{
		HostAndPort: "localhost:61613",
		Timeout:     20 * time.Second,
		Vhost:       "localhost",
		User:        "user",
		PassCode:    "pass",
		HeartBeat:   "5000,10000",
	}
	client := stompev.NewClient(opts)
	client.OnDisconnected(func() {
		fmt.Println("connection gone")
	})
	if err := client.Connect(); err != nil {
		log.Fatal(err)
	}
	_, err := client.Subscribe("/test/test", func(msg stompev.Frame) {
		fmt.Println("got message ", string(msg.Body))
	}, nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	rec := stompev.NewReceipt(time.Second * 1) //timeout after waiting for longer than a second for a receipt
	err = client.Publish("/test/test", "application/json", []byte(`{"test":"test"}`), nil, rec)
	if err != nil {
		log.Fatal(err)
	}
	//block until the receipt is received or the timeout fires
	received := <-rec.Received
	fmt.Println("receipt received ", received)
	client.Disconnect()

*/
